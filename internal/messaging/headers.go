package messaging

import "github.com/segmentio/kafka-go"

const headerEventType = "event_type"

// headerCarrier exposes Kafka message headers to the OTel propagator so that
// traces continue from the request that published an event into the worker
// that handles it.
type headerCarrier struct {
	headers *[]kafka.Header
}

func carrierFor(msg *kafka.Message) headerCarrier {
	return headerCarrier{headers: &msg.Headers}
}

func (c headerCarrier) Get(key string) string {
	return headerValue(*c.headers, key)
}

func (c headerCarrier) Set(key, value string) {
	setHeader(c.headers, key, value)
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func setHeader(headers *[]kafka.Header, key, value string) {
	for i, h := range *headers {
		if h.Key == key {
			(*headers)[i].Value = []byte(value)
			return
		}
	}
	*headers = append(*headers, kafka.Header{Key: key, Value: []byte(value)})
}
