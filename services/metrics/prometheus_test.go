package metricsvc

import (
	"net/http"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/normbook/normbook/core/grading"
)

func TestPrometheusObserver(t *testing.T) {
	matched := gradingResults.WithLabelValues(string(grading.LowerIsBetter), string(grading.OutcomeMatched), "4")
	noGrade := gradingResults.WithLabelValues(string(grading.HigherIsBetter), string(grading.OutcomeNoGender), "none")
	beforeMatched := promtest.ToFloat64(matched)
	beforeNoGrade := promtest.ToFloat64(noGrade)
	beforeGaps := promtest.ToFloat64(gapFallbacks)

	obs := PrometheusObserver{}
	obs.ObserveGrading(grading.LowerIsBetter, grading.Result{Grade: 4, Outcome: grading.OutcomeMatched})
	obs.ObserveGrading(grading.HigherIsBetter, grading.Result{Outcome: grading.OutcomeNoGender})
	obs.ObserveGrading(grading.LowerIsBetter, grading.Result{Grade: 2, Outcome: grading.OutcomeGapFallback})
	obs.ObserveGrading(grading.LowerIsBetter, grading.Result{Outcome: grading.OutcomeGapFallback})

	assert.InDelta(t, beforeMatched+1, promtest.ToFloat64(matched), 0.0001)
	assert.InDelta(t, beforeNoGrade+1, promtest.ToFloat64(noGrade), 0.0001)
	assert.InDelta(t, beforeGaps+2, promtest.ToFloat64(gapFallbacks), 0.0001)
}

func TestObserveRequest(t *testing.T) {
	c := httpRequests.WithLabelValues(http.MethodPost, "/v1/norms", "201")
	before := promtest.ToFloat64(c)

	ObserveRequest(http.MethodPost, "/v1/norms", http.StatusCreated, 15*time.Millisecond)
	assert.InDelta(t, before+1, promtest.ToFloat64(c), 0.0001)
}
