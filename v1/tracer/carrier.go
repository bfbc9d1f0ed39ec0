package tracer

import "go.opentelemetry.io/otel/propagation"

// HeaderCarrier adapts AMQP message headers to propagation.TextMapCarrier.
// Only string values are considered; other header types are ignored on Get.
type HeaderCarrier map[string]interface{}

var _ propagation.TextMapCarrier = HeaderCarrier(nil)

func (c HeaderCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (c HeaderCarrier) Set(key, value string) {
	c[key] = value
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
