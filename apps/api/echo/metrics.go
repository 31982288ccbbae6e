package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accessDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_access_denied_total",
			Help: "Total number of requests refused by an access guard",
		},
		[]string{"reason"},
	)

	assignmentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odin_assignment_events_total",
			Help: "Total number of assignment events",
		},
		[]string{"event_type"},
	)

	gradeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "odin_assignment_grade",
			Help:    "Distribution of assignment grades",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odin_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)

const (
	deniedUnauthenticated = "unauthenticated"
	deniedForbidden       = "forbidden"

	eventCreated   = "created"
	eventSubmitted = "submitted"
	eventGraded    = "graded"
)

// metricsMiddleware records the duration of every request, labelled by route (not raw path).
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)

		status := ctx.Response().Status
		if he, ok := err.(*echo.HTTPError); ok && !ctx.Response().Committed {
			status = he.Code
		}
		apiRequestDuration.WithLabelValues(ctx.Path(), ctx.Request().Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
		return err
	}
}
