package otel

import (
	"context"

	"github.com/hugolhafner/go-tasks/kafka"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = HeadersCarrier{}

// HeadersCarrier exposes record headers to OpenTelemetry propagators.
type HeadersCarrier struct {
	Headers *[]kafka.Header
}

func (c HeadersCarrier) Get(key string) string {
	if v, ok := kafka.HeaderValue(*c.Headers, key); ok {
		return string(v)
	}
	return ""
}

// Set replaces every header with the key, or appends one if none exists.
func (c HeadersCarrier) Set(key, value string) {
	found := false
	for i, h := range *c.Headers {
		if h.Key == key {
			(*c.Headers)[i].Value = []byte(value)
			found = true
		}
	}

	if !found {
		*c.Headers = append(*c.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
}

func (c HeadersCarrier) Keys() []string {
	keys := make([]string, len(*c.Headers))
	for i, h := range *c.Headers {
		keys[i] = h.Key
	}
	return keys
}

// InjectHeaders writes the trace context of ctx into headers.
func (t *Telemetry) InjectHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	t.Propagator.Inject(ctx, HeadersCarrier{Headers: &headers})
	return headers
}

// ExtractHeaders returns ctx carrying the trace context found in headers, if any.
func (t *Telemetry) ExtractHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	return t.Propagator.Extract(ctx, HeadersCarrier{Headers: &headers})
}
