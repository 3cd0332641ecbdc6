package attest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("v1")
	defer cancel()

	h.Publish(Event{VerificationID: "v1", Stage: StageQueued, Progress: 5})
	h.Publish(Event{VerificationID: "v2", Stage: StageQueued})
	h.Publish(Event{VerificationID: "v1", Stage: StageProving, Progress: 30})
	h.Publish(Event{VerificationID: "v1", Stage: StageStored, Progress: 100, Completed: true, Success: true})

	events := drain(ch)
	require.Len(t, events, 3)
	assert.Equal(t, StageQueued, events[0].Stage)
	assert.Equal(t, StageStored, events[2].Stage)
	assert.False(t, events[0].Time.IsZero())
}

func TestHubReplaysHistory(t *testing.T) {
	h := NewHub()
	h.Publish(Event{VerificationID: "v1", Stage: StageQueued})
	h.Publish(Event{VerificationID: "v1", Stage: StageFailed, Completed: true})

	ch, cancel := h.Subscribe("v1")
	defer cancel()
	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, StageFailed, events[1].Stage)

	// nothing is accepted after completion
	h.Publish(Event{VerificationID: "v1", Stage: StageProving})
	ch2, cancel2 := h.Subscribe("v1")
	defer cancel2()
	assert.Len(t, drain(ch2), 2)
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("v1")
	defer cancel()

	for i := 0; i < subscriberBuffer*4; i++ {
		h.Publish(Event{VerificationID: "v1", Stage: StageProving, Progress: i})
	}
	h.Publish(Event{VerificationID: "v1", Stage: StageStored, Completed: true})
}

func TestHubCancelAndForget(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("v1")
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	h.Publish(Event{VerificationID: "v1", Stage: StageQueued})
	_, cancel2 := h.Subscribe("v1")
	assert.Equal(t, 1, h.Len())
	h.Forget("v1")
	cancel2()
	assert.Equal(t, 0, h.Len())
}
