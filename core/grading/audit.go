package grading

import (
	"fmt"
	"sort"
	"strconv"
)

// DefaultGapTolerance treats tables such as [10, 12], [12.01, 14] as contiguous.
const DefaultGapTolerance = 0.01

// float slack for decimal boundaries like 12.01 - 12
const epsilon = 1e-9

type IssueKind string

const (
	IssueMissingGrade     IssueKind = "MISSING_GRADE"
	IssueDuplicateGrade   IssueKind = "DUPLICATE_GRADE"
	IssueInvertedInterval IssueKind = "INVERTED_INTERVAL"
	IssueInvalidGrade     IssueKind = "INVALID_GRADE"
	IssueOverlap          IssueKind = "OVERLAP"
	IssueGap              IssueKind = "GAP"
	IssueMisordered       IssueKind = "MISORDERED"
)

// Issue is a data-quality finding in one (gender, class) table.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Gender Gender    `json:"gender"`
	Class  int       `json:"class"`
	Grade  Grade     `json:"grade,omitempty"`
	Detail string    `json:"detail"`
}

type tableKey struct {
	gender Gender
	class  int
}

// Audit checks that every (gender, class) table partitions the value space into
// contiguous, non-overlapping intervals ordered 5 > 4 > 3 > 2 for direction.
// Gaps not larger than tolerance are accepted.
func Audit(boundaries []Boundary, direction Direction, tolerance float64) []Issue {
	tables := make(map[tableKey][]Boundary)
	keys := make([]tableKey, 0)
	for _, b := range boundaries {
		k := tableKey{gender: b.Gender, class: b.Class}
		if _, ok := tables[k]; !ok {
			keys = append(keys, k)
		}
		tables[k] = append(tables[k], b)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].gender != keys[j].gender {
			return keys[i].gender < keys[j].gender
		}
		return keys[i].class < keys[j].class
	})

	var issues []Issue
	for _, k := range keys {
		issues = append(issues, auditTable(k, tables[k], direction, tolerance)...)
	}
	return issues
}

func auditTable(k tableKey, rows []Boundary, direction Direction, tolerance float64) []Issue {
	var issues []Issue
	issue := func(kind IssueKind, grade Grade, format string, args ...interface{}) {
		issues = append(issues, Issue{Kind: kind, Gender: k.gender, Class: k.class, Grade: grade, Detail: fmt.Sprintf(format, args...)})
	}

	byGrade := make(map[Grade]Boundary, len(Grades))
	for _, b := range rows {
		if !b.Grade.IsValid() {
			issue(IssueInvalidGrade, b.Grade, "grade %d is not between 2 and 5", int(b.Grade))
			continue
		}
		if b.lower() > b.upper() {
			issue(IssueInvertedInterval, b.Grade, "grade %s: from %s is greater than to %s", b.Grade, fmtFrom(b.From), fmtBound(b.To))
		}
		if _, ok := byGrade[b.Grade]; ok {
			issue(IssueDuplicateGrade, b.Grade, "grade %s is defined more than once", b.Grade)
			continue
		}
		byGrade[b.Grade] = b
	}

	present := make([]Boundary, 0, len(Grades))
	for _, g := range Grades {
		if b, ok := byGrade[g]; ok {
			present = append(present, b)
		} else {
			issue(IssueMissingGrade, g, "grade %s has no interval", g)
		}
	}

	for i := 0; i+1 < len(present); i++ {
		better, worse := present[i], present[i+1]

		// first lies at the lower end of the value axis
		first, second := better, worse
		if direction == HigherIsBetter {
			first, second = worse, better
		}

		if second.upper() < first.lower() {
			issue(IssueMisordered, worse.Grade, "grade %s lies on the better side of grade %s", worse.Grade, better.Grade)
			continue
		}
		gap := second.lower() - first.upper()
		switch {
		case gap > tolerance+epsilon:
			issue(IssueGap, worse.Grade, "values between %s and %s (grades %s/%s) match no interval",
				fmtBound(first.To), fmtFrom(second.From), better.Grade, worse.Grade)
		case gap < 0:
			issue(IssueOverlap, worse.Grade, "grades %s and %s overlap between %s and %s",
				better.Grade, worse.Grade, fmtFrom(second.From), fmtBound(first.To))
		}
	}
	return issues
}

func fmtFrom(v *float64) string {
	if v == nil {
		return "-∞"
	}
	return fmtBound(v)
}

func fmtBound(v *float64) string {
	if v == nil {
		return "∞"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
