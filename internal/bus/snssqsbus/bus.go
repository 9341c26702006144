// Package snssqsbus implements bus.EventBus on AWS SNS (publish) + SQS
// (subscribe) via aws-sdk-go-v2, grounded on
// original_source/src/bus/sns_sqs/mod.rs. SNS/SQS has no native
// hierarchical topic matching, so — exactly like the Rust original —
// this implementation does subscribe-side filtering with bus.MatchPattern
// after receiving from a (possibly domain-unfiltered) queue. FIFO ordering
// uses MessageGroupId = root id, per spec §4.4.
package snssqsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/retry"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// Config configures topic/queue naming and AWS wiring.
type Config struct {
	TopicPrefix         string // default "angzarr"
	SubscriptionID      string
	QueueURL            string // pre-provisioned FIFO queue this subscriber polls
	VisibilityTimeout   int32
	MaxMessages         int32
	WaitTimeSeconds      int32
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "angzarr"
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = 30
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = 10
	}
	if c.WaitTimeSeconds == 0 {
		c.WaitTimeSeconds = 20
	}
	return c
}

// TopicARNFor returns the SNS topic name for a domain: "{prefix}-events-{domain}".
func TopicARNFor(prefix, domain string) string {
	return fmt.Sprintf("%s-events-%s", prefix, domain)
}

type wireBook struct {
	Domain        string     `json:"domain"`
	Root          string     `json:"root"`
	CorrelationID string     `json:"correlation_id"`
	Edition       string     `json:"edition"`
	Pages         []wirePage `json:"pages"`
}

type wirePage struct {
	Sequence  uint64 `json:"sequence"`
	CreatedAt string `json:"created_at"`
	TypeURL   string `json:"type_url"`
	Value     []byte `json:"value"`
}

// Bus is an SNS-publish / SQS-subscribe backed EventBus.
type Bus struct {
	sns          *sns.Client
	sqs          *sqs.Client
	cfg          Config
	dlqPublisher dlq.Publisher
}

// New wraps already-configured SNS/SQS clients.
func New(snsClient *sns.Client, sqsClient *sqs.Client, cfg Config, publisher dlq.Publisher) *Bus {
	if publisher == nil {
		publisher = dlq.NoopPublisher{}
	}
	return &Bus{sns: snsClient, sqs: sqsClient, cfg: cfg.withDefaults(), dlqPublisher: publisher}
}

var _ bus.EventBus = (*Bus)(nil)

func encode(book pb.EventBook) (wireBook, error) {
	w := wireBook{
		Domain:        book.Cover.Domain,
		Root:          book.Cover.Root.String(),
		CorrelationID: book.Cover.CorrelationID,
		Edition:       book.Cover.Edition,
	}
	for _, p := range book.Pages {
		wp := wirePage{Sequence: p.Sequence, CreatedAt: p.CreatedAt.Format(time.RFC3339Nano)}
		if p.Event != nil {
			wp.TypeURL, wp.Value = p.Event.TypeUrl, p.Event.Value
		}
		w.Pages = append(w.Pages, wp)
	}
	return w, nil
}

func (b *Bus) Publish(ctx context.Context, book pb.EventBook) error {
	w, err := encode(book)
	if err != nil {
		return err
	}
	body, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("snssqsbus: marshal: %w", err)
	}

	topicName := TopicARNFor(b.cfg.TopicPrefix, book.Cover.Domain)
	rootID := book.Cover.Root.String()

	_, err = b.sns.Publish(ctx, &sns.PublishInput{
		TopicArn:               aws.String(topicName),
		Message:                aws.String(string(body)),
		MessageGroupId:         aws.String(rootID), // FIFO ordering by aggregate root, per spec §4.4
		MessageDeduplicationId: aws.String(fmt.Sprintf("%s-%d", rootID, len(book.Pages))),
	})
	if err != nil {
		return fmt.Errorf("snssqsbus: publish: %w", err)
	}
	return nil
}

// Subscribe polls cfg.QueueURL and applies bus.MatchPattern against each
// message's domain before invoking handler, since SNS/SQS delivers
// everything routed to the bound queue regardless of the consumer's
// intended pattern.
func (b *Bus) Subscribe(pattern string, opts bus.SubscriptionOptions, handler bus.Handler) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		policy := retry.DefaultPolicy()
		policy.MaxRetries = opts.MaxRetries
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			out, err := b.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(b.cfg.QueueURL),
				MaxNumberOfMessages: b.cfg.MaxMessages,
				WaitTimeSeconds:     b.cfg.WaitTimeSeconds,
				VisibilityTimeout:   b.cfg.VisibilityTimeout,
			})
			if err != nil {
				continue
			}
			for _, m := range out.Messages {
				var w wireBook
				if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &w); err != nil {
					b.deleteMessage(ctx, m)
					continue
				}
				if !bus.MatchPattern(pattern, w.Domain) {
					b.deleteMessage(ctx, m)
					continue
				}
				book := decode(w)
				attempt := 0
				_, err := retry.Do(ctx, policy, "snssqsbus", func(ctx context.Context) (struct{}, error) {
					attempt++
					return struct{}{}, handler(ctx, book, bus.ModeLive)
				})
				if err != nil {
					letter := pb.FromEventProcessingFailure(book.Cover, book, err, attempt, true, "snssqsbus", "bus-subscription")
					_ = b.dlqPublisher.Publish(ctx, letter)
				}
				b.deleteMessage(ctx, m)
			}
		}
	}()
	return cancel, nil
}

func (b *Bus) deleteMessage(ctx context.Context, m sqstypes.Message) {
	_, _ = b.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.cfg.QueueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
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
