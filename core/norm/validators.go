package norm

import (
	"github.com/go-playground/validator/v10"

	"github.com/normbook/normbook/core"
)

var (
	genderTag  = "gender"
	genderText = "unknown gender code"

	periodTag  = "period"
	periodText = "period must be one of REGULAR, START_OF_YEAR or END_OF_YEAR"

	gradeeTag  = "student_or_profile"
	gradeeText = "provide a student_id or both gender and class"
)

func init() {
	RegisterValidators(core.Validate)
}

// RegisterValidators registers the norm validation tags on validate and core.Translator.
func RegisterValidators(validate *validator.Validate) {
	_ = validate.RegisterValidation(genderTag, genderValidation)
	core.RegisterCustomTranslation(validate, core.Translator, genderTag, genderText)

	_ = validate.RegisterValidation(periodTag, periodValidation)
	core.RegisterCustomTranslation(validate, core.Translator, periodTag, periodText)

	validate.RegisterStructValidation(gradeRequestValidation, GradeRequest{})
	core.RegisterCustomTranslation(validate, core.Translator, gradeeTag, gradeeText)
}

// genderValidation accepts any code ParseGender understands.
func genderValidation(fl validator.FieldLevel) bool {
	return ParseGender(fl.Field().String()).IsKnown()
}

func periodValidation(fl validator.FieldLevel) bool {
	return Period(fl.Field().String()).IsValid()
}

// gradeRequestValidation checks that the graded person is identified.
func gradeRequestValidation(sl validator.StructLevel) {
	gr := sl.Current().Interface().(GradeRequest)
	if gr.StudentID != "" {
		return
	}
	if gr.Gender == "" {
		sl.ReportError(gr.Gender, "gender", "Gender", gradeeTag, "")
	}
	if gr.Class == 0 {
		sl.ReportError(gr.Class, "class", "Class", gradeeTag, "")
	}
}
