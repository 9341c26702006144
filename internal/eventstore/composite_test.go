package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

func page(seq uint64) pb.EventPage {
	return pb.EventPage{Sequence: seq, CreatedAt: time.Unix(int64(seq), 0)}
}

func seqs(pages []pb.EventPage) []uint64 {
	out := make([]uint64, len(pages))
	for i, p := range pages {
		out[i] = p.Sequence
	}
	return out
}

func TestCompositeRead_NoEditionEvents(t *testing.T) {
	main := []pb.EventPage{page(0), page(1), page(2)}
	got := CompositeRead(nil, main, 0)
	assert.Equal(t, []uint64{0, 1, 2}, seqs(got))
}

func TestCompositeRead_EditionScenario(t *testing.T) {
	// spec §8 scenario 5: main 0-4, edition "trial" 3,4,5 -> merged 0-5.
	main := []pb.EventPage{page(0), page(1), page(2), page(3), page(4)}
	edition := []pb.EventPage{page(3), page(4), page(5)}

	got := CompositeRead(edition, main, 0)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, seqs(got))
}

func TestCompositeRead_RespectsFrom(t *testing.T) {
	main := []pb.EventPage{page(0), page(1), page(2), page(3), page(4)}
	edition := []pb.EventPage{page(3), page(4), page(5)}

	got := CompositeRead(edition, main, 2)
	assert.Equal(t, []uint64{2, 3, 4, 5}, seqs(got))
}

func TestCompositeRead_DivergenceAtZero(t *testing.T) {
	main := []pb.EventPage{page(0), page(1)}
	edition := []pb.EventPage{page(0), page(1), page(2)}

	got := CompositeRead(edition, main, 0)
	assert.Equal(t, []uint64{0, 1, 2}, seqs(got))
}
