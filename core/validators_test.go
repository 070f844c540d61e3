package core

import (
	"math"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_finite(t *testing.T) {
	type measurement struct {
		Value float64 `json:"value" validate:"finite"`
	}

	tests := []struct {
		name    string
		value   float64
		wantMsg string
	}{
		{name: "finite", value: 10.5},
		{name: "NaN", value: math.NaN(), wantMsg: "value must be a finite number"},
		{name: "+Inf", value: math.Inf(1), wantMsg: "value must be a finite number"},
		{name: "-Inf", value: math.Inf(-1), wantMsg: "value must be a finite number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate.Struct(measurement{Value: tt.value})
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, "value", verrs[0].Field())
			assert.Equal(t, tt.wantMsg, verrs[0].Translate(Translator))
		})
	}
}

func TestValidate_onlyDomainTags(t *testing.T) {
	assert.Panics(t, func() { _ = Validate.Var("some_name", "alphanum_") })
	assert.NotPanics(t, func() { _ = Validate.Var(1.5, "finite") })
}
