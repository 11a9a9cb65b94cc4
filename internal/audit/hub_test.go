package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(TypeRequest))
	hub.Emit(sampleEvent(TypeRequest))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(TypeError))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	hub := &Hub{
		cfg:     Config{},
		events:  make(chan Event),
		logger:  zap.New(core),
		dropLog: throttleLog{interval: time.Hour},
	}
	start := time.Now()
	hub.Emit(sampleEvent(TypeRequest))
	hub.Emit(sampleEvent(TypeRequest))
	require.Less(t, time.Since(start), 50*time.Millisecond)

	warnings := logs.FilterMessage("audit events dropped due to backpressure").All()
	require.Len(t, warnings, 1)
	require.Equal(t, int64(1), warnings[0].ContextMap()["dropped"])
	require.Equal(t, int64(1), hub.dropped.Load())
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)
	hub.Emit(Event{Type: TypeRequest})
	hub.Emit(Event{TS: time.Now(), Type: TypeSourceFailure})
	hub.Emit(Event{TS: time.Now(), Type: "bogus"})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(TypeRequest))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.True(t, sink.closed)

	hub.Emit(sampleEvent(TypeRequest))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1, "events after close are ignored")
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	require.NoError(t, Event{TS: now, Type: TypeRequest}.Validate())
	require.Error(t, Event{TS: now, Type: TypeError}.Validate())
	require.NoError(t, Event{TS: now, Type: TypeError, ErrorKind: crawler.ErrKindValidation}.Validate())
	require.Error(t, Event{TS: now, Type: TypeHistory, RequestID: "r"}.Validate())
	require.NoError(t, Event{TS: now, Type: TypeHistory, RequestID: "r", Result: &crawler.CrawlResult{}}.Validate())
	require.Error(t, Event{TS: now, Type: TypeRequest, Dur: -1}.Validate())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	copy(out, s.batches)
	return out
}

func sampleEvent(typ Type) Event {
	evt := Event{
		RequestID: "req-1",
		TS:        time.Now(),
		Type:      typ,
		UserID:    "u1",
	}
	if typ == TypeError {
		evt.ErrorKind = crawler.ErrKindAllSourcesFailed
	}
	return evt
}
