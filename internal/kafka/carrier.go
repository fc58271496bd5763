package kafka

import segkafka "github.com/segmentio/kafka-go"

// HeaderCarrier adapts Kafka message headers to the OpenTelemetry
// propagation.TextMapCarrier interface.
type HeaderCarrier []segkafka.Header

// Get returns the value for the first header matching key, or "".
func (c HeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set writes key/value, replacing any existing header with the same key.
func (c *HeaderCarrier) Set(key, value string) {
	kept := (*c)[:0]
	for _, h := range *c {
		if h.Key != key {
			kept = append(kept, h)
		}
	}
	*c = append(kept, segkafka.Header{Key: key, Value: []byte(value)})
}

// Keys returns all header keys present in the carrier.
func (c HeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}
