package persona

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "maskid/internal/services/persona"

	// defaultFanout bounds concurrent side lookups while projecting lists.
	defaultFanout = 8
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer. The default uses the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source for new records and synthetic defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithProjectionFanout bounds concurrent lookups when projecting profile lists.
func WithProjectionFanout(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanout = n
		}
	}
}

func defaults(s *Service) {
	s.logger = slog.New(slog.DiscardHandler)
	s.tracer = otel.Tracer(tracerName)
	s.now = func() time.Time { return time.Now().UTC() }
	s.fanout = defaultFanout
}
