package pb

import "time"

// DlqTopic returns the dead-letter topic name for a domain, per spec §4.5.
func DlqTopic(domain string) string {
	return "angzarr.dlq." + domain
}

// RejectionKind discriminates the RejectionDetails union.
type RejectionKind int

const (
	RejectionSequenceMismatch RejectionKind = iota
	RejectionEventProcessingFailed
	RejectionPayloadRetrievalFailed
)

// SequenceMismatch is emitted by MANUAL-strategy conflicts.
type SequenceMismatch struct {
	Expected      uint64
	Actual        uint64
	MergeStrategy MergeStrategy
}

// EventProcessingFailed is emitted when a saga/projector exhausts retries.
type EventProcessingFailed struct {
	Error      string
	RetryCount int
	IsTransient bool
}

// PayloadRetrievalFailed is emitted when hydrating an ExternalPayload fails.
type PayloadRetrievalFailed struct {
	StorageType  string
	URI          string
	ContentHash  string
	OriginalSize int64
	Error        string
}

// RejectionDetails is the tagged union of dead-letter causes.
type RejectionDetails struct {
	Kind                   RejectionKind
	SequenceMismatch       *SequenceMismatch
	EventProcessingFailed  *EventProcessingFailed
	PayloadRetrievalFailed *PayloadRetrievalFailed
}

// DeadLetterPayloadKind discriminates whether the dead-lettered payload was
// a rejected command or a rejected event.
type DeadLetterPayloadKind int

const (
	DeadLetterPayloadCommand DeadLetterPayloadKind = iota
	DeadLetterPayloadEvent
)

// DeadLetter is the self-describing envelope routed to angzarr.dlq.{domain}.
type DeadLetter struct {
	Cover               Cover
	PayloadKind         DeadLetterPayloadKind
	Command             *CommandBook
	Event                *EventBook
	RejectionDetails    RejectionDetails
	OccurredAt          time.Time
	SourceComponent     string
	SourceComponentType string
	Metadata            map[string]string
}

// FromSequenceMismatch builds a DeadLetter for a MANUAL-strategy conflict.
func FromSequenceMismatch(cover Cover, cmd CommandBook, expected, actual uint64, strategy MergeStrategy, sourceComponent string) DeadLetter {
	return DeadLetter{
		Cover:       cover,
		PayloadKind: DeadLetterPayloadCommand,
		Command:     &cmd,
		RejectionDetails: RejectionDetails{
			Kind: RejectionSequenceMismatch,
			SequenceMismatch: &SequenceMismatch{
				Expected:      expected,
				Actual:        actual,
				MergeStrategy: strategy,
			},
		},
		SourceComponent:     sourceComponent,
		SourceComponentType: "aggregate-pipeline",
		Metadata:            map[string]string{},
	}
}

// FromEventProcessingFailure builds a DeadLetter for a saga/projector that
// exhausted its retry budget handling an event book.
func FromEventProcessingFailure(cover Cover, book EventBook, err error, retryCount int, transient bool, sourceComponent, sourceComponentType string) DeadLetter {
	return DeadLetter{
		Cover:       cover,
		PayloadKind: DeadLetterPayloadEvent,
		Event:       &book,
		RejectionDetails: RejectionDetails{
			Kind: RejectionEventProcessingFailed,
			EventProcessingFailed: &EventProcessingFailed{
				Error:       err.Error(),
				RetryCount:  retryCount,
				IsTransient: transient,
			},
		},
		SourceComponent:     sourceComponent,
		SourceComponentType: sourceComponentType,
		Metadata:            map[string]string{},
	}
}

// FromPayloadRetrievalFailure builds a DeadLetter for a failed external
// payload hydration.
func FromPayloadRetrievalFailure(cover Cover, ext ExternalPayload, err error, sourceComponent, sourceComponentType string) DeadLetter {
	return DeadLetter{
		Cover:       cover,
		PayloadKind: DeadLetterPayloadEvent,
		RejectionDetails: RejectionDetails{
			Kind: RejectionPayloadRetrievalFailed,
			PayloadRetrievalFailed: &PayloadRetrievalFailed{
				StorageType:  ext.StorageType,
				URI:          ext.URI,
				ContentHash:  ext.ContentHash,
				OriginalSize: ext.OriginalSize,
				Error:        err.Error(),
			},
		},
		SourceComponent:     sourceComponent,
		SourceComponentType: sourceComponentType,
		Metadata:            map[string]string{},
	}
}

// WithMetadata returns a copy of d with the given key/value merged in.
func (d DeadLetter) WithMetadata(key, value string) DeadLetter {
	md := make(map[string]string, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		md[k] = v
	}
	md[key] = value
	d.Metadata = md
	return d
}

// Topic returns the dead-letter topic this envelope belongs on.
func (d DeadLetter) Topic() string {
	return DlqTopic(d.Cover.Domain)
}
