package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailgate_http_request_duration_seconds",
			Help:    "Gateway request duration and status codes in seconds.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{
			"route",
			"code",
		},
	)
	metricAuth = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgate_auth_total",
			Help: "Gateway authentication outcomes.",
		},
		[]string{
			"result", // ok, forbidden, unauthorized
		},
	)
	metricAttachments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgate_attachments_total",
			Help: "Attachments processed while serving messages.",
		},
		[]string{
			"result", // stored, infected, scanerror, storeerror
		},
	)
)
