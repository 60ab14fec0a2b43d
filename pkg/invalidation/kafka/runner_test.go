package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spatialkit/h3-boundary/internal/core/observability"
	"github.com/spatialkit/h3-boundary/internal/invalidation"
)

type fakeApplier struct {
	mu     sync.Mutex
	events []invalidation.Event
	err    error
}

func (f *fakeApplier) Apply(_ context.Context, ev invalidation.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeApplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func intp(v int) *int { return &v }

func newTestRunner(t *testing.T, ap Applier) *Runner {
	t.Helper()
	reg := prometheus.NewRegistry()
	observability.Init(reg, true)
	cfg := InvalidationConfig{Enabled: true, Driver: DriverKafka}
	return New(cfg, ap, Options{Register: reg})
}

func wireMsg(t *testing.T, w WireEvent, ts time.Time) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Timestamp: ts, Value: b}
}

func TestHandleMessage_AppliesAndDedupes(t *testing.T) {
	ap := &fakeApplier{}
	r := newTestRunner(t, ap)

	ts := time.Now().Add(-2 * time.Second).UTC()
	msg := wireMsg(t, WireEvent{Version: 1, Scope: "cell", Cell: "881f05975dfffff", Reason: "edit", TS: ts}, ts)

	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if got := ap.count(); got != 1 {
		t.Fatalf("applies = %d, want 1", got)
	}

	// redelivery of the same event is dropped
	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("second handleMessage: %v", err)
	}
	if got := ap.count(); got != 1 {
		t.Fatalf("applies after duplicate = %d, want still 1", got)
	}
}

func TestHandleMessage_NewerEventForSameTargetApplies(t *testing.T) {
	ap := &fakeApplier{}
	r := newTestRunner(t, ap)

	ts := time.Now().UTC()
	first := wireMsg(t, WireEvent{Version: 1, Scope: "res", Res: intp(9), TS: ts}, ts)
	later := wireMsg(t, WireEvent{Version: 1, Scope: "res", Res: intp(9), TS: ts.Add(time.Second)}, ts.Add(time.Second))

	if err := r.handleMessage(context.Background(), first); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := r.handleMessage(context.Background(), later); err != nil {
		t.Fatalf("later: %v", err)
	}
	if got := ap.count(); got != 2 {
		t.Fatalf("applies = %d, want 2", got)
	}

	// an old replay after the newer event is stale
	if err := r.handleMessage(context.Background(), first); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := ap.count(); got != 2 {
		t.Fatalf("applies after stale replay = %d, want still 2", got)
	}
}

func TestHandleMessage_FailedApplyStaysEligible(t *testing.T) {
	ap := &fakeApplier{err: errors.New("redis down")}
	r := newTestRunner(t, ap)

	ts := time.Now().UTC()
	msg := wireMsg(t, WireEvent{Version: 1, Scope: "all", TS: ts}, ts)

	if err := r.handleMessage(context.Background(), msg); err == nil {
		t.Fatalf("expected apply error")
	}

	ap.mu.Lock()
	ap.err = nil
	ap.mu.Unlock()

	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := ap.count(); got != 1 {
		t.Fatalf("applies = %d, want 1", got)
	}
}

func TestHandleMessage_TimestampFallsBackToMessage(t *testing.T) {
	ap := &fakeApplier{}
	r := newTestRunner(t, ap)

	ts := time.Now().UTC()
	msg := wireMsg(t, WireEvent{Version: 1, Scope: "all"}, ts)

	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	ap.mu.Lock()
	got := ap.events[0].TS
	ap.mu.Unlock()
	if !got.Equal(ts) {
		t.Fatalf("event ts %v, want message ts %v", got, ts)
	}
}

func TestHandleMessage_RejectsGarbageAndBadScope(t *testing.T) {
	ap := &fakeApplier{}
	r := newTestRunner(t, ap)
	ts := time.Now().UTC()

	garbage := &sarama.ConsumerMessage{Topic: "t", Timestamp: ts, Value: []byte("{not json")}
	if err := r.handleMessage(context.Background(), garbage); err == nil {
		t.Fatalf("expected decode error")
	}

	bad := wireMsg(t, WireEvent{Version: 1, Scope: "layer", TS: ts}, ts)
	if err := r.handleMessage(context.Background(), bad); err == nil {
		t.Fatalf("expected validation error")
	}
	if got := ap.count(); got != 0 {
		t.Fatalf("applies = %d, want 0", got)
	}
}

func TestReadiness_FalseUntilAssigned(t *testing.T) {
	r := newTestRunner(t, &fakeApplier{})
	if ready, _ := r.Readiness(); ready {
		t.Fatalf("expected not ready before partition assignment")
	}
}

func TestStart_DisabledIsNoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(InvalidationConfig{Enabled: false, Driver: DriverNone}, &fakeApplier{}, Options{Register: reg})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("disabled Start should not error: %v", err)
	}
	r.Stop()
}
