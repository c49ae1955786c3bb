package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeStore struct {
	rows []Record
	sent []int64
}

func (f *fakeStore) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	var pending []Record
	for _, rec := range f.rows {
		if rec.SentAt == nil && len(pending) < limit {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}

func (f *fakeStore) MarkSent(ctx context.Context, id int64) error {
	f.sent = append(f.sent, id)
	now := time.Now()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].SentAt = &now
		}
	}
	return nil
}

func (f *fakeStore) pendingCount() int {
	n := 0
	for _, rec := range f.rows {
		if rec.SentAt == nil {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	published []Record
	failOn    string
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if f.failOn != "" && key == f.failOn {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, Record{Topic: topic, Key: key, Payload: payload})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelay_Drain(t *testing.T) {
	t.Run("publishes pending rows in order and marks them sent", func(t *testing.T) {
		store := &fakeStore{rows: []Record{
			{ID: 1, EventID: "e1", Topic: "order_events", Key: "order.created"},
			{ID: 2, EventID: "e2", Topic: "inventory_events", Key: "stock.updated"},
		}}
		pub := &fakePublisher{}
		relay := NewRelay(store, pub, discardLogger(), time.Second, 10)

		if err := relay.Drain(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(pub.published) != 2 {
			t.Fatalf("expected 2 published, got %d", len(pub.published))
		}
		if pub.published[0].Key != "order.created" || pub.published[1].Key != "stock.updated" {
			t.Errorf("unexpected publish order: %v", pub.published)
		}
		if len(store.sent) != 2 || store.sent[0] != 1 || store.sent[1] != 2 {
			t.Errorf("expected rows 1 and 2 marked sent, got %v", store.sent)
		}
	})

	t.Run("stops the batch on publish failure so order is preserved", func(t *testing.T) {
		store := &fakeStore{rows: []Record{
			{ID: 1, EventID: "e1", Topic: "order_events", Key: "order.created"},
			{ID: 2, EventID: "e2", Topic: "inventory_events", Key: "stock.updated"},
			{ID: 3, EventID: "e3", Topic: "inventory_events", Key: "stock.low"},
		}}
		pub := &fakePublisher{failOn: "stock.updated"}
		relay := NewRelay(store, pub, discardLogger(), time.Second, 10)

		if err := relay.Drain(context.Background()); err == nil {
			t.Fatal("expected error")
		}

		if len(pub.published) != 1 {
			t.Fatalf("expected 1 published before failure, got %d", len(pub.published))
		}
		if len(store.sent) != 1 || store.sent[0] != 1 {
			t.Errorf("expected only row 1 marked sent, got %v", store.sent)
		}
		// Rows 2 and 3 stay pending for the next drain.
		if store.pendingCount() != 2 {
			t.Errorf("expected 2 rows still pending, got %d", store.pendingCount())
		}
	})

	t.Run("respects batch size", func(t *testing.T) {
		store := &fakeStore{rows: []Record{{ID: 1}, {ID: 2}, {ID: 3}}}
		pub := &fakePublisher{}
		relay := NewRelay(store, pub, discardLogger(), time.Second, 2)

		if err := relay.Drain(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pub.published) != 2 {
			t.Fatalf("expected 2 published, got %d", len(pub.published))
		}
	})
}
