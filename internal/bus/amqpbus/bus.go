// Package amqpbus implements bus.EventBus on a RabbitMQ topic exchange via
// github.com/rabbitmq/amqp091-go, grounded on LerianStudio-midaz's AMQP
// usage. Routing key is the book's domain (spec §4.4); ordering per
// (domain, root) is achieved by a single consumer per queue with prefetch=1
// and acking only after the handler returns.
package amqpbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/retry"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

const exchangeKind = "topic"

// wireBook is the JSON transport shape for an EventBook over AMQP. The wire
// format itself is out of spec scope (spec §1); JSON is used here as a
// concrete, inspectable choice consistent with mickamy-go-event-sourcing's
// JSON-encoded event payloads.
type wireBook struct {
	Domain        string `json:"domain"`
	Root          string `json:"root"`
	CorrelationID string `json:"correlation_id"`
	Edition       string `json:"edition"`
	Pages         []wirePage `json:"pages"`
}

type wirePage struct {
	Sequence  uint64 `json:"sequence"`
	CreatedAt string `json:"created_at"`
	TypeURL   string `json:"type_url"`
	Value     []byte `json:"value"`
}

// Bus is an AMQP-backed EventBus bound to one topic exchange.
type Bus struct {
	conn         *amqp.Connection
	exchange     string
	dlqPublisher dlq.Publisher
}

// Dial connects to url and declares the topic exchange.
func Dial(url, exchange string, publisher dlq.Publisher) (*Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqpbus: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqpbus: channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("amqpbus: exchange declare: %w", err)
	}
	if publisher == nil {
		publisher = dlq.NoopPublisher{}
	}
	return &Bus{conn: conn, exchange: exchange, dlqPublisher: publisher}, nil
}

var _ bus.EventBus = (*Bus)(nil)

func encode(book pb.EventBook) ([]byte, error) {
	w := wireBook{
		Domain:        book.Cover.Domain,
		Root:          book.Cover.Root.String(),
		CorrelationID: book.Cover.CorrelationID,
		Edition:       book.Cover.Edition,
	}
	for _, p := range book.Pages {
		wp := wirePage{Sequence: p.Sequence, CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00")}
		if p.Event != nil {
			wp.TypeURL, wp.Value = p.Event.TypeUrl, p.Event.Value
		}
		w.Pages = append(w.Pages, wp)
	}
	return json.Marshal(w)
}

func (b *Bus) Publish(ctx context.Context, book pb.EventBook) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqpbus: publish channel: %w", err)
	}
	defer ch.Close()

	body, err := encode(book)
	if err != nil {
		return fmt.Errorf("amqpbus: encode: %w", err)
	}

	return ch.PublishWithContext(ctx, b.exchange, book.Cover.Domain, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: book.Cover.CorrelationID,
		Body:          body,
	})
}

// Subscribe declares an exclusive queue bound to pattern (translated to an
// AMQP binding key — "*" and "#" map directly, AMQP's own wildcard
// semantics on topic exchanges) and consumes with prefetch 1 so handler
// completion gates the next delivery, giving per-(domain,root) ordering as
// long as a single consumer owns the queue.
func (b *Bus) Subscribe(pattern string, opts bus.SubscriptionOptions, handler bus.Handler) (func(), error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqpbus: subscribe channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("amqpbus: qos: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqpbus: queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, pattern, b.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("amqpbus: queue bind: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqpbus: consume: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		policy := retry.DefaultPolicy()
		policy.MaxRetries = opts.MaxRetries
		for d := range deliveries {
			var w wireBook
			if err := json.Unmarshal(d.Body, &w); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			book := decode(w)
			attempt := 0
			_, err := retry.Do(ctx, policy, "amqpbus", func(ctx context.Context) (struct{}, error) {
				attempt++
				return struct{}{}, handler(ctx, book, bus.ModeLive)
			})
			if err != nil {
				letter := pb.FromEventProcessingFailure(book.Cover, book, err, attempt, true, "amqpbus", "bus-subscription")
				_ = b.dlqPublisher.Publish(ctx, letter)
			}
			_ = d.Ack(false)
		}
	}()

	return func() { cancel(); _ = ch.Close() }, nil
}

func decode(w wireBook) pb.EventBook {
	root, _ := uuid.Parse(w.Root)
	cover := pb.NewCoverWithEdition(w.Domain, root, w.CorrelationID, w.Edition)
	pages := make([]pb.EventPage, 0, len(w.Pages))
	for _, wp := range w.Pages {
		t, _ := time.Parse(time.RFC3339Nano, wp.CreatedAt)
		pages = append(pages, pb.EventPage{
			Sequence:  wp.Sequence,
			CreatedAt: t,
			Event:     &anypb.Any{TypeUrl: wp.TypeURL, Value: wp.Value},
		})
	}
	return pb.EventBook{Cover: cover, Pages: pages}
}

func (b *Bus) SendToDLQ(ctx context.Context, letter pb.DeadLetter) error {
	return b.dlqPublisher.Publish(ctx, letter)
}
