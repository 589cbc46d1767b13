package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hope", Name: "logins_total", Help: "Login attempts by outcome",
	}, []string{"outcome"})
	Registrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hope", Name: "registrations_total", Help: "Completed registrations",
	})
	RemoteWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hope", Name: "remote_write_failures_total", Help: "Failed student document write attempts",
	})
	RosterSnapshots = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hope", Name: "roster_snapshots_total", Help: "Roster snapshots applied from the live subscription",
	})
	AIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hope", Name: "ai_requests_total", Help: "Generative AI requests by kind",
	}, []string{"kind"})
	HTTPRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hope", Name: "http_request_seconds", Help: "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})
)

func init() {
	prometheus.MustRegister(Logins, Registrations, RemoteWriteFailures, RosterSnapshots, AIRequests, HTTPRequests)
}

func Handler() http.Handler { return promhttp.Handler() }
