package processmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

func TestDerivedRoot_Deterministic(t *testing.T) {
	a := DerivedRoot("corr-1")
	b := DerivedRoot("corr-1")
	c := DerivedRoot("corr-2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestFold_TracksCompletedAndDispatch(t *testing.T) {
	book := pb.EventBook{
		Pages: []pb.EventPage{
			{Sequence: 0, Event: encodePrerequisiteCompleted("table-ready", []string{"table-ready"}, []string{"hand-dealt"})},
			{Sequence: 1, Event: encodePrerequisiteCompleted("hand-dealt", []string{"table-ready", "hand-dealt"}, nil)},
			{Sequence: 2, Event: encodeDispatchIssued([]string{"table-ready", "hand-dealt"})},
		},
	}
	st := Fold(book)
	assert.True(t, st.Completed["table-ready"])
	assert.True(t, st.Completed["hand-dealt"])
	assert.True(t, st.DispatchIssued)
}

func TestFold_PartialCompletion(t *testing.T) {
	book := pb.EventBook{
		Pages: []pb.EventPage{
			{Sequence: 0, Event: encodePrerequisiteCompleted("table-ready", []string{"table-ready"}, []string{"hand-dealt"})},
		},
	}
	st := Fold(book)
	assert.True(t, st.Completed["table-ready"])
	assert.False(t, st.Completed["hand-dealt"])
	assert.False(t, st.DispatchIssued)
}

func TestAllComplete(t *testing.T) {
	def := Definition{Prerequisites: []string{"a", "b"}}
	assert.False(t, allComplete(def, map[string]bool{"a": true}))
	assert.True(t, allComplete(def, map[string]bool{"a": true, "b": true}))
}

func TestRemaining(t *testing.T) {
	def := Definition{Prerequisites: []string{"a", "b", "c"}}
	r := remaining(def, map[string]bool{"a": true})
	require.Len(t, r, 2)
	assert.ElementsMatch(t, []string{"b", "c"}, r)
}
