package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"soil-advisor/internal/models"
	"soil-advisor/pkg/dedup"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

type recorderFunc func(ctx context.Context, in *models.ReadingInput) (*models.SoilReading, error)

func (f recorderFunc) Record(ctx context.Context, in *models.ReadingInput) (*models.SoilReading, error) {
	return f(ctx, in)
}

type captured struct {
	mu      sync.Mutex
	inputs  []models.ReadingInput
	sources []string
}

func (c *captured) recorder() Recorder {
	return recorderFunc(func(ctx context.Context, in *models.ReadingInput) (*models.SoilReading, error) {
		reading, err := in.ToReading("r", time.Now())
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.inputs = append(c.inputs, *in)
		c.sources = append(c.sources, logging.Source(ctx))
		return reading, nil
	})
}

func newTestSubscriber(rec Recorder) (*Subscriber, *metrics.Collector) {
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
	s := NewSubscriber(nil, "soil/readings", 1, rec, dedup.New(time.Minute, 100), logging.NewNopLogger(), collector)
	return s, collector
}

func TestHandle(t *testing.T) {
	c := &captured{}
	s, collector := newTestSubscriber(c.recorder())
	ctx := context.Background()

	payload := []byte(`{"message_id":"m-1","nitrogen":2.5,"ph":6.1,"moisture":85,"crop":"rice","recorded_at":"2024-03-01T08:00:00Z"}`)
	if err := s.Handle(ctx, payload); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := s.Handle(ctx, payload); !errors.Is(err, ErrDuplicate) {
		t.Errorf("redelivered Handle() error = %v, want ErrDuplicate", err)
	}

	if len(c.inputs) != 1 {
		t.Fatalf("recorded %d inputs, want 1", len(c.inputs))
	}
	got := c.inputs[0]
	if *got.Nitrogen != 2.5 || *got.PH != 6.1 || *got.Moisture != 85 || got.Crop != "rice" {
		t.Errorf("recorded input = %+v", got)
	}
	if got.RecordedAt == nil || !got.RecordedAt.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("RecordedAt = %v", got.RecordedAt)
	}

	if v := testutil.ToFloat64(collector.IngestionErrorsTotal.WithLabelValues("duplicate")); v != 1 {
		t.Errorf("ingestion_errors_total{duplicate} = %v, want 1", v)
	}
}

func TestHandleWithoutMessageIDIsNotDeduplicated(t *testing.T) {
	c := &captured{}
	s, _ := newTestSubscriber(c.recorder())

	payload := []byte(`{"nitrogen":2.5,"ph":6.1,"moisture":85,"crop":"rice"}`)
	for i := 0; i < 2; i++ {
		if err := s.Handle(context.Background(), payload); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}
	if len(c.inputs) != 2 {
		t.Errorf("recorded %d inputs, want 2", len(c.inputs))
	}
}

func TestHandleRejects(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		errorType string
	}{
		{"malformed json", `{"nitrogen":`, "decode_error"},
		{"missing moisture", `{"message_id":"a","nitrogen":2,"ph":6,"crop":"rice"}`, "validation_error"},
		{"ph out of range", `{"message_id":"b","nitrogen":2,"ph":15,"moisture":60,"crop":"rice"}`, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &captured{}
			s, collector := newTestSubscriber(c.recorder())

			if err := s.Handle(context.Background(), []byte(tt.payload)); err == nil {
				t.Fatal("Handle() error = nil, want error")
			}
			if len(c.inputs) != 0 {
				t.Errorf("recorded %d inputs, want 0", len(c.inputs))
			}
			if v := testutil.ToFloat64(collector.IngestionErrorsTotal.WithLabelValues(tt.errorType)); v != 1 {
				t.Errorf("ingestion_errors_total{%s} = %v, want 1", tt.errorType, v)
			}
		})
	}
}

func TestHandleStoreError(t *testing.T) {
	failing := recorderFunc(func(ctx context.Context, in *models.ReadingInput) (*models.SoilReading, error) {
		return nil, errors.New("disk full")
	})
	s, collector := newTestSubscriber(failing)

	err := s.Handle(context.Background(), []byte(`{"nitrogen":2,"ph":6,"moisture":60,"crop":"rice"}`))
	if err == nil {
		t.Fatal("Handle() error = nil, want store error")
	}
	if v := testutil.ToFloat64(collector.IngestionErrorsTotal.WithLabelValues("store_error")); v != 1 {
		t.Errorf("ingestion_errors_total{store_error} = %v, want 1", v)
	}
}

func TestHandleRetriesAfterFailure(t *testing.T) {
	c := &captured{}
	stored := c.recorder()
	calls := 0
	flaky := recorderFunc(func(ctx context.Context, in *models.ReadingInput) (*models.SoilReading, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("database is locked")
		}
		return stored.Record(ctx, in)
	})
	s, _ := newTestSubscriber(flaky)
	ctx := context.Background()

	payload := []byte(`{"message_id":"m-1","nitrogen":2.5,"ph":6.1,"moisture":85,"crop":"rice"}`)
	if err := s.Handle(ctx, payload); err == nil {
		t.Fatal("first Handle() error = nil, want store error")
	}
	if err := s.Handle(ctx, payload); err != nil {
		t.Fatalf("retried Handle() error = %v, want nil", err)
	}
	if err := s.Handle(ctx, payload); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Handle() after success error = %v, want ErrDuplicate", err)
	}

	if calls != 2 || len(c.inputs) != 1 {
		t.Errorf("recorder calls = %d, stored = %d, want 2 and 1", calls, len(c.inputs))
	}
}

func TestHandleAcceptsCorrectedRepublish(t *testing.T) {
	c := &captured{}
	s, _ := newTestSubscriber(c.recorder())
	ctx := context.Background()

	bad := []byte(`{"message_id":"m-2","nitrogen":2,"ph":15,"moisture":60,"crop":"rice"}`)
	if err := s.Handle(ctx, bad); err == nil {
		t.Fatal("Handle(ph 15) error = nil, want validation error")
	}

	fixed := []byte(`{"message_id":"m-2","nitrogen":2,"ph":6.5,"moisture":60,"crop":"rice"}`)
	if err := s.Handle(ctx, fixed); err != nil {
		t.Fatalf("Handle(corrected) error = %v", err)
	}
	if len(c.inputs) != 1 || *c.inputs[0].PH != 6.5 {
		t.Errorf("stored inputs = %+v", c.inputs)
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestOnMessageTagsSource(t *testing.T) {
	c := &captured{}
	s, _ := newTestSubscriber(c.recorder())

	handler := s.onMessage(logging.WithSource(context.Background(), "mqtt"))
	handler(nil, fakeMessage{
		topic:   "soil/readings",
		payload: []byte(`{"nitrogen":2,"ph":6,"moisture":60,"crop":"wheat"}`),
	})
	handler(nil, fakeMessage{topic: "soil/readings", payload: []byte(`not json`)})

	if len(c.sources) != 1 || c.sources[0] != "mqtt" {
		t.Errorf("sources = %v, want [mqtt]", c.sources)
	}
}
