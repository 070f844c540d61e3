// Package grading maps a measured fitness-test value to a 5/4/3/2 grade using
// age/gender specific boundary tables.
package grading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// caller contract violations
	ErrInvalidValue            = errors.New("grading: value must be a finite number")
	ErrInvalidDirection        = errors.New("grading: unknown direction")
	ErrInvalidApplicableGender = errors.New("grading: unknown applicable gender")
	ErrInvalidBoundary         = errors.New("grading: boundary grade must be between 2 and 5")

	ErrUnknownGapPolicy = errors.New("grading: unknown gap policy")
)

// NoGradeDisplay is how a missing grade is rendered.
const NoGradeDisplay = "—"

type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
)

func (g Gender) IsKnown() bool {
	return g == GenderMale || g == GenderFemale
}

type ApplicableGender string

const (
	ApplicableAll    ApplicableGender = "ALL"
	ApplicableMale   ApplicableGender = "MALE"
	ApplicableFemale ApplicableGender = "FEMALE"
)

func (ag ApplicableGender) IsValid() bool {
	switch ag {
	case ApplicableAll, ApplicableMale, ApplicableFemale:
		return true
	}
	return false
}

type Direction string

const (
	LowerIsBetter  Direction = "LOWER_IS_BETTER"  // e.g. a race time
	HigherIsBetter Direction = "HIGHER_IS_BETTER" // e.g. a jump distance
)

func (d Direction) IsValid() bool {
	return d == LowerIsBetter || d == HigherIsBetter
}

// Grade is a school mark; the zero value means "no grade".
type Grade int

const (
	NoGrade        Grade = 0
	GradePoor      Grade = 2
	GradeFair      Grade = 3
	GradeGood      Grade = 4
	GradeExcellent Grade = 5
)

var Grades = []Grade{GradeExcellent, GradeGood, GradeFair, GradePoor}

func (g Grade) IsValid() bool {
	return g >= GradePoor && g <= GradeExcellent
}

func (g Grade) String() string {
	if !g.IsValid() {
		return NoGradeDisplay
	}
	return strconv.Itoa(int(g))
}

// MarshalJSON encodes NoGrade as null; out of range grades keep their number.
func (g Grade) MarshalJSON() ([]byte, error) {
	if g == NoGrade {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(g))), nil
}

func (g *Grade) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*g = NoGrade
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*g = Grade(n)
	return nil
}

// Boundary is one row of a boundary table: the inclusive interval [From, To] earns Grade
// for students of Gender in Class. A nil bound is unbounded on its side.
type Boundary struct {
	Grade  Grade    `json:"grade"`
	Gender Gender   `json:"gender"`
	Class  int      `json:"class"`
	From   *float64 `json:"from_value"`
	To     *float64 `json:"to_value"`
}

func (b Boundary) lower() float64 {
	if b.From == nil {
		return math.Inf(-1)
	}
	return *b.From
}

func (b Boundary) upper() float64 {
	if b.To == nil {
		return math.Inf(1)
	}
	return *b.To
}

// Contains reports whether value lies within the inclusive interval.
func (b Boundary) Contains(value float64) bool {
	return b.lower() <= value && value <= b.upper()
}

// Outcome tells how a Result was reached.
type Outcome string

const (
	OutcomeMatched      Outcome = "MATCHED"       // value inside a boundary interval
	OutcomeAboveTop     Outcome = "ABOVE_TOP"     // better than the best boundary
	OutcomeBelowBottom  Outcome = "BELOW_BOTTOM"  // worse than the worst boundary
	OutcomeGapFallback  Outcome = "GAP_FALLBACK"  // value fell into a hole of the table
	OutcomeNoGender     Outcome = "NO_GENDER"     // student gender unknown
	OutcomeNoBoundaries Outcome = "NO_BOUNDARIES" // no rows for (gender, class)
)

// Result is the decision plus the diagnostics that led to it.
type Result struct {
	Grade    Grade     `json:"grade"`
	Outcome  Outcome   `json:"outcome"`
	Gender   Gender    `json:"gender,omitempty"` // gender axis actually used
	Boundary *Boundary `json:"boundary,omitempty"`
}

func (r Result) HasGrade() bool {
	return r.Grade.IsValid()
}

// NeedsReview reports a grade produced by the gap fallback rather than a real match.
func (r Result) NeedsReview() bool {
	return r.Outcome == OutcomeGapFallback && r.HasGrade()
}

// Display renders the grade, or an em-dash when there is none.
func (r Result) Display() string {
	return r.Grade.String()
}

// GapPolicy decides what a value falling into a gap of the table earns.
type GapPolicy int

const (
	GapFloor   GapPolicy = iota // grade 2, flagged for review
	GapNoGrade                  // no grade, like a missing table
)

// ParseGapPolicy accepts "floor" (or empty) and "nograde" (or "none").
// Any other value returns GapFloor with ErrUnknownGapPolicy.
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch s {
	case "", "floor":
		return GapFloor, nil
	case "nograde", "none":
		return GapNoGrade, nil
	}
	return GapFloor, fmt.Errorf("%w: %q", ErrUnknownGapPolicy, s)
}

// Bound returns a pointer to v, for building Boundary literals.
func Bound(v float64) *float64 { return &v }
