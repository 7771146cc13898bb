// Package metrics exposes the Prometheus collectors for the HTTP API and the verification flows.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the subset of Collector used by services. Nop satisfies it when metrics are off.
type Recorder interface {
	RecordRegistration(outcome string)
	RecordOTPVerification(channel, outcome string)
	RecordScan(tool, outcome string)
}

// Collector holds every collector registered by NewCollector.
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	registrations *prometheus.CounterVec
	otpChecks     *prometheus.CounterVec
	scans         *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onego_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onego_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onego_registrations_total",
			Help: "Registration attempts by outcome (started, completed, rejected, delivery_failed).",
		}, []string{"outcome"}),
		otpChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onego_otp_verifications_total",
			Help: "OTP verifications by channel and outcome.",
		}, []string{"channel", "outcome"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onego_security_scans_total",
			Help: "Security tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}
	reg.MustRegister(c.httpRequests, c.httpDuration, c.registrations, c.otpChecks, c.scans)
	return c
}

// RecordHTTP records one served request. route is the chi route pattern, not the raw path.
func (c *Collector) RecordHTTP(route, method string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordOTPVerification(channel, outcome string) {
	c.otpChecks.WithLabelValues(channel, outcome).Inc()
}

func (c *Collector) RecordScan(tool, outcome string) {
	c.scans.WithLabelValues(tool, outcome).Inc()
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordRegistration(string)           {}
func (Nop) RecordOTPVerification(string, string) {}
func (Nop) RecordScan(string, string)            {}
