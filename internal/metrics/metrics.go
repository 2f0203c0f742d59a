package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PointsAwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school", Name: "points_awarded_total", Help: "Points awarded, by source",
	}, []string{"source"})
	AwardEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school", Name: "award_events_total", Help: "Point-earning events, by source",
	}, []string{"source"})
	BadgesAwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school", Name: "badges_awarded_total", Help: "Badges awarded, by badge",
	}, []string{"badge"})
	Reminders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school", Name: "reminders_total", Help: "Reminder decisions, by kind and outcome",
	}, []string{"kind", "outcome"})
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "school", Name: "deliveries_total", Help: "Outbound deliveries, by channel and outcome",
	}, []string{"channel", "outcome"})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "school", Name: "handler_errors_total", Help: "Swallowed side-effect errors",
	})
	HTTPRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "school", Name: "http_request_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "school", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(PointsAwarded, AwardEvents, BadgesAwarded, Reminders, Deliveries,
		HandlerErrors, HTTPRequests, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
