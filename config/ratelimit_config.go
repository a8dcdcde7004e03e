package config

type RateLimitConfig interface {
	GetRequestsPerSecond() float64
	GetBurst() int
}

// RateLimit paces outgoing requests on the client side. Zero requests per second
// disables pacing.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

var _ RateLimitConfig = RateLimit{}

func (r RateLimit) GetRequestsPerSecond() float64 {
	return r.RequestsPerSecond
}

func (r RateLimit) GetBurst() int {
	if r.Burst < 1 {
		return 1
	}
	return r.Burst
}
