package pb

import "time"

// TemporalSelection bounds a speculative/replay query either by sequence or
// by wall-clock time, mirroring the PipelineMode qualifiers in spec §4.6.
type TemporalSelection struct {
	BySequence bool
	Sequence   uint64
	ByTime     bool
	Time       time.Time
}

// AsOfSequence builds a TemporalSelection bounded by sequence (inclusive).
func AsOfSequence(seq uint64) TemporalSelection {
	return TemporalSelection{BySequence: true, Sequence: seq}
}

// AsOfTimestamp builds a TemporalSelection bounded by timestamp (inclusive).
func AsOfTimestamp(t time.Time) TemporalSelection {
	return TemporalSelection{ByTime: true, Time: t}
}

// PipelineMode selects between a durable execute and a non-durable
// speculative replay of the aggregate pipeline.
type PipelineMode struct {
	Speculative bool
	AsOf        TemporalSelection
}

// ExecuteMode is the default, durable pipeline mode.
var ExecuteMode = PipelineMode{}

// SpeculativeMode builds a non-durable "what-if" pipeline mode.
func SpeculativeMode(asOf TemporalSelection) PipelineMode {
	return PipelineMode{Speculative: true, AsOf: asOf}
}

// RangeSelection bounds a load_range query: [From, ToExclusive).
type RangeSelection struct {
	From        uint64
	ToExclusive uint64
}

// Query describes a read against the EventStore.
type Query struct {
	Domain   string
	Root     [16]byte
	Edition  string
	Range    *RangeSelection
	Temporal *TemporalSelection
}
