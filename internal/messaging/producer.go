package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

var producerTracer = otel.Tracer("messaging/producer")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes domain events to a single topic, keyed by aggregate id so
// that events of one order stay in order.
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		now:   time.Now,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           100 * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
		},
	}
}

func (p *Producer) PublishEvent(ctx context.Context, event domain.Event) error {
	env, err := NewEnvelope(event, p.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	key := event.AggregateID()
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}
	setHeader(&msg.Headers, headerEventType, env.EventType)

	ctx, span := producerTracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(key),
			semconv.MessagingMessageID(env.EventID),
			attribute.String("storefront.event_type", env.EventType),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, carrierFor(&msg))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
