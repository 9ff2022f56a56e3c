package feedstore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// recordingMetrics captures RecordOp calls for assertions.
type recordingMetrics struct {
	mu  sync.Mutex
	ops []recordedOp
}

type recordedOp struct {
	op      string
	success bool
}

func (r *recordingMetrics) RecordOp(op string, _ float64, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{op: op, success: success})
}

func TestInstrumentedStoreRecordsOps(t *testing.T) {
	ctx := context.Background()
	rec := &recordingMetrics{}
	store := NewInstrumentedStore(NewMockStore(), rec)

	store.Add(ctx, "k", "e1", 1)
	store.RangeDesc(ctx, "k", 0, -1)
	store.Delete(ctx, "k")

	want := []recordedOp{
		{"add", true},
		{"range", true},
		{"delete", true},
	}
	if len(rec.ops) != len(want) {
		t.Fatalf("expected %d recorded ops, got %d", len(want), len(rec.ops))
	}
	for i, w := range want {
		if rec.ops[i] != w {
			t.Errorf("op %d: got %+v, want %+v", i, rec.ops[i], w)
		}
	}
}

func TestInstrumentedStoreRecordsFailures(t *testing.T) {
	ctx := context.Background()
	rec := &recordingMetrics{}
	mock := NewMockStore()
	store := NewInstrumentedStore(mock, rec)

	boom := errors.New("boom")
	mock.FailKey("k", 1, boom)

	if err := store.Add(ctx, "k", "e1", 1); !errors.Is(err, boom) {
		t.Fatalf("expected error passthrough, got %v", err)
	}
	if len(rec.ops) != 1 || rec.ops[0].success {
		t.Fatalf("expected one failed op recorded, got %+v", rec.ops)
	}
}

func TestInstrumentedStoreNilRecorder(t *testing.T) {
	ctx := context.Background()
	store := NewInstrumentedStore(NewMockStore(), nil)

	if err := store.Add(ctx, "k", "e1", 1); err != nil {
		t.Fatalf("add with nil recorder: %v", err)
	}
	if n, _ := store.Card(ctx, "k"); n != 1 {
		t.Errorf("expected passthrough to backing store, got card %d", n)
	}
}
