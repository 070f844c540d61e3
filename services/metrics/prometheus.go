package metricsvc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/normbook/normbook/core/grading"
	"github.com/normbook/normbook/core/norm"
)

const namespace = "normbook"

var (
	gradingResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grading",
		Name:      "results_total",
		Help:      "Grades resolved, by direction, outcome and grade (\"none\" when no grade was given).",
	}, []string{"direction", "outcome", "grade"})

	gapFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grading",
		Name:      "gap_fallbacks_total",
		Help:      "Values that fell into a gap of a boundary table.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by method, route and status code.",
	}, []string{"method", "route", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(gradingResults, gapFallbacks, httpRequests, httpDuration)
}

// PrometheusObserver counts grading outcomes.
type PrometheusObserver struct{}

var _ norm.GradingObserver = PrometheusObserver{}

func (PrometheusObserver) ObserveGrading(direction grading.Direction, res grading.Result) {
	grade := "none"
	if res.HasGrade() {
		grade = strconv.Itoa(int(res.Grade))
	}
	gradingResults.WithLabelValues(string(direction), string(res.Outcome), grade).Inc()
	if res.Outcome == grading.OutcomeGapFallback {
		gapFallbacks.Inc()
	}
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(method, route string, code int, took time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
