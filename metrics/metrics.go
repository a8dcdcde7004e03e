package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bsky"

// Refresh outcomes recorded by the session manager.
const (
	RefreshSucceeded = "success"
	RefreshFailed    = "failure"
	RefreshSkipped   = "skipped" // another caller refreshed while this one waited
)

// Collectors groups the client's Prometheus metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	SessionRefreshes *prometheus.CounterVec
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		SessionRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "session_refresh_total", Help: "Session refresh attempts by result."},
			[]string{"result"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "xrpc_requests_total", Help: "XRPC requests by method and HTTP status code."},
			[]string{"nsid", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "xrpc_request_duration_seconds", Help: "XRPC request latency including retries.", Buckets: prometheus.DefBuckets},
			[]string{"nsid"},
		),
	}
	for _, collector := range []prometheus.Collector{c.SessionRefreshes, c.Requests, c.RequestDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collectors) ObserveRefresh(result string) {
	if c == nil {
		return
	}
	c.SessionRefreshes.WithLabelValues(result).Inc()
}

// ObserveRequest records one attempt. A zero code means no response was received.
func (c *Collectors) ObserveRequest(nsid string, code int) {
	if c == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	c.Requests.WithLabelValues(nsid, label).Inc()
}

func (c *Collectors) ObserveDuration(nsid string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RequestDuration.WithLabelValues(nsid).Observe(elapsed.Seconds())
}
