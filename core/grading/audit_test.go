package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func kinds(issues []Issue) []IssueKind {
	out := make([]IssueKind, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Kind)
	}
	return out
}

func TestAudit(t *testing.T) {
	tests := []struct {
		name       string
		boundaries []Boundary
		direction  Direction
		want       []IssueKind
	}{
		{
			name:       "well formed lower is better",
			boundaries: runTable()[:4],
			direction:  LowerIsBetter,
			want:       []IssueKind{},
		},
		{
			name: "well formed higher is better",
			boundaries: []Boundary{
				{Grade: GradeExcellent, Gender: GenderFemale, Class: 7, From: Bound(180), To: nil},
				{Grade: GradeGood, Gender: GenderFemale, Class: 7, From: Bound(160), To: Bound(179.99)},
				{Grade: GradeFair, Gender: GenderFemale, Class: 7, From: Bound(140), To: Bound(159.99)},
				{Grade: GradePoor, Gender: GenderFemale, Class: 7, From: nil, To: Bound(139.99)},
			},
			direction: HigherIsBetter,
			want:      []IssueKind{},
		},
		{
			name:       "integer steps leave gaps",
			boundaries: jumpTable(),
			direction:  HigherIsBetter,
			want:       []IssueKind{IssueGap, IssueGap, IssueGap},
		},
		{
			name: "missing grade",
			boundaries: []Boundary{
				{Grade: GradeExcellent, Gender: GenderMale, Class: 4, From: Bound(0), To: Bound(10)},
				{Grade: GradeGood, Gender: GenderMale, Class: 4, From: Bound(10.01), To: Bound(12)},
				{Grade: GradePoor, Gender: GenderMale, Class: 4, From: Bound(12.01), To: Bound(20)},
			},
			direction: LowerIsBetter,
			want:      []IssueKind{IssueMissingGrade},
		},
		{
			name: "gap wider than tolerance",
			boundaries: []Boundary{
				{Grade: GradeExcellent, Gender: GenderMale, Class: 4, From: Bound(0), To: Bound(10)},
				{Grade: GradeGood, Gender: GenderMale, Class: 4, From: Bound(10.5), To: Bound(12)},
				{Grade: GradeFair, Gender: GenderMale, Class: 4, From: Bound(12.01), To: Bound(14)},
				{Grade: GradePoor, Gender: GenderMale, Class: 4, From: Bound(14.01), To: Bound(20)},
			},
			direction: LowerIsBetter,
			want:      []IssueKind{IssueGap},
		},
		{
			name: "overlap",
			boundaries: []Boundary{
				{Grade: GradeExcellent, Gender: GenderFemale, Class: 7, From: Bound(180), To: nil},
				{Grade: GradeGood, Gender: GenderFemale, Class: 7, From: Bound(160), To: Bound(185)},
				{Grade: GradeFair, Gender: GenderFemale, Class: 7, From: Bound(140), To: Bound(159.99)},
				{Grade: GradePoor, Gender: GenderFemale, Class: 7, From: Bound(100), To: Bound(139.99)},
			},
			direction: HigherIsBetter,
			want:      []IssueKind{IssueOverlap},
		},
		{
			name: "order reversed for direction",
			boundaries: []Boundary{
				{Grade: GradeExcellent, Gender: GenderMale, Class: 4, From: Bound(0), To: Bound(10)},
				{Grade: GradeGood, Gender: GenderMale, Class: 4, From: Bound(10.01), To: Bound(12)},
				{Grade: GradeFair, Gender: GenderMale, Class: 4, From: Bound(12.01), To: Bound(14)},
				{Grade: GradePoor, Gender: GenderMale, Class: 4, From: Bound(14.01), To: Bound(20)},
			},
			direction: HigherIsBetter,
			want:      []IssueKind{IssueMisordered, IssueMisordered, IssueMisordered},
		},
		{
			name: "inverted interval and duplicate",
			boundaries: []Boundary{
				{Grade: GradeExcellent, Gender: GenderMale, Class: 4, From: Bound(0), To: Bound(10)},
				{Grade: GradeExcellent, Gender: GenderMale, Class: 4, From: Bound(0), To: Bound(9)},
				{Grade: GradeGood, Gender: GenderMale, Class: 4, From: Bound(10.01), To: Bound(12)},
				{Grade: GradeFair, Gender: GenderMale, Class: 4, From: Bound(14), To: Bound(12.01)},
				{Grade: GradePoor, Gender: GenderMale, Class: 4, From: Bound(14.01), To: Bound(20)},
			},
			direction: LowerIsBetter,
			// the inverted row also breaks contiguity on both sides
			want: []IssueKind{IssueDuplicateGrade, IssueInvertedInterval, IssueGap, IssueGap},
		},
		{
			name: "invalid grade",
			boundaries: append(runTable()[:4],
				Boundary{Grade: 6, Gender: GenderMale, Class: 4, From: Bound(0), To: Bound(1)}),
			direction: LowerIsBetter,
			want:      []IssueKind{IssueInvalidGrade},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Audit(tt.boundaries, tt.direction, DefaultGapTolerance)
			assert.Equal(t, tt.want, kinds(got))
		})
	}
}

func TestAudit_toleranceIsConfigurable(t *testing.T) {
	table := runTable()[:4]
	assert.Empty(t, Audit(table, LowerIsBetter, DefaultGapTolerance))

	strict := Audit(table, LowerIsBetter, 0)
	assert.Len(t, strict, 3)
	for _, i := range strict {
		assert.Equal(t, IssueGap, i.Kind)
	}
}

func TestAudit_groupsByGenderAndClass(t *testing.T) {
	rows := []Boundary{
		{Grade: GradeExcellent, Gender: GenderMale, Class: 5, From: Bound(0), To: Bound(9)},
		{Grade: GradeExcellent, Gender: GenderFemale, Class: 4, From: Bound(0), To: Bound(11)},
	}
	got := Audit(rows, LowerIsBetter, DefaultGapTolerance)

	// each table misses grades 4, 3 and 2; FEMALE sorts before MALE
	assert.Len(t, got, 6)
	assert.Equal(t, GenderFemale, got[0].Gender)
	assert.Equal(t, 4, got[0].Class)
	assert.Equal(t, GenderMale, got[5].Gender)
	assert.Equal(t, 5, got[5].Class)
	assert.Equal(t, "grade 2 has no interval", got[5].Detail)
}
