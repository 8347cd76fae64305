package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottlePassesNonSummaryEventsImmediately(t *testing.T) {
	var received []Event
	sink := EmitterFunc(func(e Event) { received = append(received, e) })
	throttle := NewThrottle(sink, time.Hour)

	throttle.Emit(Event{Action: "pull", Path: "a"})
	throttle.Emit(Event{Action: "pull", Path: "b"})

	assert.Len(t, received, 2)
}

func TestThrottleCoalescesSummaryEvents(t *testing.T) {
	var received []Event
	sink := EmitterFunc(func(e Event) { received = append(received, e) })
	throttle := NewThrottle(sink, time.Hour)

	throttle.Emit(Event{Action: "summary"})
	throttle.Emit(Event{Action: "summary"})
	throttle.Emit(Event{Action: "summary"})

	assert.Len(t, received, 1)
}

func TestThrottleZeroIntervalDisablesThrottling(t *testing.T) {
	var received []Event
	sink := EmitterFunc(func(e Event) { received = append(received, e) })
	throttle := NewThrottle(sink, 0)

	throttle.Emit(Event{Action: "summary"})
	throttle.Emit(Event{Action: "summary"})

	assert.Len(t, received, 2)
}

func TestThrottleAssignsMonotonicSequence(t *testing.T) {
	var received []Event
	sink := EmitterFunc(func(e Event) { received = append(received, e) })
	throttle := NewThrottle(sink, 0)

	throttle.Emit(Event{Action: "pull"})
	throttle.Emit(Event{Action: "pull"})

	assert.Equal(t, int64(1), received[0].Seq)
	assert.Equal(t, int64(2), received[1].Seq)
}

func TestNullEmitterDiscardsEvents(t *testing.T) {
	assert.NotPanics(t, func() {
		Null.Emit(Event{Action: "pull"})
	})
}
