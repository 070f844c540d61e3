package grading

import (
	"math"
	"sort"
)

// Input is everything the resolver needs; boundaries are fetched by the caller beforehand.
type Input struct {
	Value            float64
	StudentGender    Gender
	StudentClass     int
	Direction        Direction
	ApplicableGender ApplicableGender
	Boundaries       []Boundary
}

// Resolver holds the policy knobs; the zero value is ready to use.
type Resolver struct {
	GapPolicy GapPolicy
}

// Resolve grades in with the default policy.
func Resolve(in Input) (Result, error) {
	return Resolver{}.Resolve(in)
}

// Resolve determines the grade in.Value earns.
// Missing gender or boundaries yield a Result without a grade and a nil error;
// errors are only returned for invalid input.
func (r Resolver) Resolve(in Input) (Result, error) {
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return Result{}, ErrInvalidValue
	}
	if !in.Direction.IsValid() {
		return Result{}, ErrInvalidDirection
	}

	gender, err := resolveGender(in.ApplicableGender, in.StudentGender)
	if err != nil {
		return Result{}, err
	}
	if !gender.IsKnown() {
		return Result{Outcome: OutcomeNoGender}, nil
	}

	set, err := selectBoundaries(in.Boundaries, gender, in.StudentClass)
	if err != nil {
		return Result{}, err
	}
	if len(set) == 0 {
		return Result{Outcome: OutcomeNoBoundaries, Gender: gender}, nil
	}

	// best-to-worst, so overlapping intervals resolve to the better grade
	for i := range set {
		if set[i].Contains(in.Value) {
			return graded(gender, set[i], set[i].Grade, OutcomeMatched), nil
		}
	}

	best, worst := set[0], set[len(set)-1]
	switch in.Direction {
	case LowerIsBetter:
		if in.Value < best.lower() {
			return graded(gender, best, GradeExcellent, OutcomeAboveTop), nil
		}
		if in.Value > worst.upper() {
			return graded(gender, worst, GradePoor, OutcomeBelowBottom), nil
		}
	case HigherIsBetter:
		if in.Value > best.upper() {
			return graded(gender, best, GradeExcellent, OutcomeAboveTop), nil
		}
		if in.Value < worst.lower() {
			return graded(gender, worst, GradePoor, OutcomeBelowBottom), nil
		}
	}

	if r.GapPolicy == GapNoGrade {
		return Result{Outcome: OutcomeGapFallback, Gender: gender}, nil
	}
	return Result{Grade: GradePoor, Outcome: OutcomeGapFallback, Gender: gender}, nil
}

func graded(gender Gender, b Boundary, grade Grade, outcome Outcome) Result {
	return Result{Grade: grade, Outcome: outcome, Gender: gender, Boundary: &b}
}

// resolveGender picks the gender axis: a gender-restricted template wins over the student's own.
func resolveGender(applicable ApplicableGender, student Gender) (Gender, error) {
	switch applicable {
	case ApplicableMale:
		return GenderMale, nil
	case ApplicableFemale:
		return GenderFemale, nil
	case ApplicableAll:
		if student.IsKnown() {
			return student, nil
		}
		return GenderUnknown, nil
	default:
		return GenderUnknown, ErrInvalidApplicableGender
	}
}

// selectBoundaries returns the rows for (gender, class) sorted by grade, best first.
func selectBoundaries(all []Boundary, gender Gender, class int) ([]Boundary, error) {
	set := make([]Boundary, 0, len(Grades))
	for _, b := range all {
		if b.Gender != gender || b.Class != class {
			continue
		}
		if !b.Grade.IsValid() {
			return nil, ErrInvalidBoundary
		}
		set = append(set, b)
	}
	sort.SliceStable(set, func(i, j int) bool { return set[i].Grade > set[j].Grade })
	return set, nil
}
