package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunqi-go/tunqi/internal/audit"
	"github.com/tunqi-go/tunqi/internal/log"
)

func recordingObserver() (audit.Observer, func() []audit.Event) {
	var got []audit.Event
	return audit.ObserverFunc(func(_ context.Context, ev audit.Event) error {
		got = append(got, ev)
		return nil
	}), func() []audit.Event { return got }
}

func TestCollectorDiscardsBufferOnSuccess(t *testing.T) {
	observer, events := recordingObserver()
	stream := audit.NewStream(observer, log.NewNopLogger())
	c := audit.NewCollector(stream, 10)

	c.Record(audit.Event{Table: "u", Operation: "insert"})
	c.Flush(context.Background(), false)

	assert.Empty(t, events())
}

func TestCollectorFlushesBufferOnFailure(t *testing.T) {
	observer, events := recordingObserver()
	stream := audit.NewStream(observer, log.NewNopLogger())
	c := audit.NewCollector(stream, 10)

	c.Record(audit.Event{Table: "u", Operation: "insert"})
	c.Record(audit.Event{Table: "u", Operation: "update"})
	c.Flush(context.Background(), true)

	got := events()
	require.Len(t, got, 2)
	assert.Equal(t, "insert", got[0].Operation)
	assert.Equal(t, "update", got[1].Operation)
}

func TestCollectorDropsOldestEventPastCapacity(t *testing.T) {
	observer, events := recordingObserver()
	stream := audit.NewStream(observer, log.NewNopLogger())
	c := audit.NewCollector(stream, 2)

	c.Record(audit.Event{Operation: "a"})
	c.Record(audit.Event{Operation: "b"})
	c.Record(audit.Event{Operation: "c"})
	c.Flush(context.Background(), true)

	got := events()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Operation)
	assert.Equal(t, "c", got[1].Operation)
}

func TestFlushClearsTheBufferEitherWay(t *testing.T) {
	observer, events := recordingObserver()
	stream := audit.NewStream(observer, log.NewNopLogger())
	c := audit.NewCollector(stream, 10)

	c.Record(audit.Event{Operation: "a"})
	c.Flush(context.Background(), false)
	c.Flush(context.Background(), true)

	assert.Empty(t, events())
}

func TestNilCollectorRecordAndFlushAreNoOps(t *testing.T) {
	var c *audit.Collector
	assert.NotPanics(t, func() {
		c.Record(audit.Event{Operation: "a"})
		c.Flush(context.Background(), true)
	})
}

func TestEmitIsNoOpWithoutACollectorInContext(t *testing.T) {
	assert.NotPanics(t, func() {
		audit.Emit(context.Background(), audit.Event{Operation: "a"})
	})
}

func TestEmitRecordsAgainstTheCollectorInContext(t *testing.T) {
	observer, events := recordingObserver()
	stream := audit.NewStream(observer, log.NewNopLogger())
	c := audit.NewCollector(stream, 10)
	ctx := audit.WithCollector(context.Background(), c)

	audit.Emit(ctx, audit.Event{Table: "t", Operation: "select"})
	c.Flush(ctx, true)

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, "t", got[0].Table)
}

func TestStreamDeliveryFailureIsLoggedNotReturned(t *testing.T) {
	boom := errors.New("sink down")
	observer := audit.ObserverFunc(func(context.Context, audit.Event) error { return boom })
	stream := audit.NewStream(observer, log.NewNopLogger())
	c := audit.NewCollector(stream, 10)

	c.Record(audit.Event{Operation: "a"})
	assert.NotPanics(t, func() { c.Flush(context.Background(), true) })
}

func TestNilStreamDeliversNothing(t *testing.T) {
	c := audit.NewCollector(nil, 10)
	c.Record(audit.Event{Operation: "a"})
	assert.NotPanics(t, func() { c.Flush(context.Background(), true) })
}
