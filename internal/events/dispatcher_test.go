package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/models"
)

type fakeOutbox struct {
	mu        sync.Mutex
	events    []models.OutboxEvent
	published map[string]bool
	parked    map[string]bool
	failures  map[string]string
}

// newFakeOutbox queues one event per name, all for the same request.
func newFakeOutbox(names ...string) *fakeOutbox {
	o := &fakeOutbox{published: map[string]bool{}, parked: map[string]bool{}, failures: map[string]string{}}
	for _, n := range names {
		o.add("req-1", n)
	}
	return o
}

func (o *fakeOutbox) add(requestID, name string) string {
	id := string(rune('a' + len(o.events)))
	o.events = append(o.events, models.OutboxEvent{ID: id, Event: models.MaterialRequestEvent{ID: id, RequestID: requestID, Name: name}})
	return id
}

func (o *fakeOutbox) PendingEvents(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []models.OutboxEvent
	for _, e := range o.events {
		if !o.published[e.ID] && !o.parked[e.ID] {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkPublished(_ context.Context, id string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published[id] = true
	return nil
}

func (o *fakeOutbox) bump(id, reason string) {
	for i := range o.events {
		if o.events[i].ID == id {
			o.events[i].Attempts++
		}
	}
	o.failures[id] = reason
}

func (o *fakeOutbox) MarkFailed(_ context.Context, id, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bump(id, reason)
	return nil
}

func (o *fakeOutbox) MarkParked(_ context.Context, id, reason string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bump(id, reason)
	o.parked[id] = true
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	names  []string
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, e models.MaterialRequestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.Name == p.failOn {
		return errors.New("broker down")
	}
	p.names = append(p.names, e.Name)
	return nil
}

func TestDispatchOncePublishesInOrder(t *testing.T) {
	outbox := newFakeOutbox("material-request.created", "material-request.submitted")
	pub := &recordingPublisher{}
	d := NewDispatcher(outbox, pub, time.Second, 10, logger.Nop())

	n, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("DispatchOnce failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 events published, got %d", n)
	}
	if pub.names[0] != "material-request.created" || pub.names[1] != "material-request.submitted" {
		t.Errorf("Unexpected publish order: %v", pub.names)
	}

	n, _ = d.DispatchOnce(context.Background())
	if n != 0 {
		t.Errorf("Expected nothing left to publish, got %d", n)
	}
}

func TestDispatchOnceHoldsBackSameRequestAfterFailure(t *testing.T) {
	outbox := newFakeOutbox("material-request.created", "material-request.approved", "material-request.sent")
	pub := &recordingPublisher{failOn: "material-request.approved"}
	d := NewDispatcher(outbox, pub, time.Second, 10, logger.Nop())

	n, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("DispatchOnce failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 event published, got %d", n)
	}
	if outbox.failures["b"] == "" {
		t.Error("Expected failure to be recorded for the second event")
	}
	if outbox.published["c"] {
		t.Error("Later events of the same request must wait for the retry")
	}
}

func TestDispatchOnceKeepsOtherRequestsFlowing(t *testing.T) {
	outbox := &fakeOutbox{published: map[string]bool{}, parked: map[string]bool{}, failures: map[string]string{}}
	stuck := outbox.add("req-1", "poison")
	held := outbox.add("req-1", "material-request.sent")
	other := outbox.add("req-2", "material-request.created")
	pub := &recordingPublisher{failOn: "poison"}
	d := NewDispatcher(outbox, pub, time.Second, 10, logger.Nop())

	n, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("DispatchOnce failed: %v", err)
	}
	if n != 1 || !outbox.published[other] {
		t.Errorf("Expected the other request's event to go out, sent=%d published=%v", n, outbox.published)
	}
	if outbox.published[held] || outbox.published[stuck] {
		t.Error("Expected the failing request to stay blocked")
	}
}

func TestDispatchOnceParksAfterMaxAttempts(t *testing.T) {
	outbox := &fakeOutbox{published: map[string]bool{}, parked: map[string]bool{}, failures: map[string]string{}}
	stuck := outbox.add("req-1", "poison")
	next := outbox.add("req-1", "material-request.sent")
	pub := &recordingPublisher{failOn: "poison"}
	d := NewDispatcher(outbox, pub, time.Second, 10, logger.Nop())
	d.SetMaxAttempts(3)

	for i := 0; i < 3; i++ {
		if _, err := d.DispatchOnce(context.Background()); err != nil {
			t.Fatalf("DispatchOnce %d failed: %v", i, err)
		}
	}
	if !outbox.parked[stuck] {
		t.Fatal("Expected the event to be parked after 3 attempts")
	}
	if outbox.published[next] {
		t.Error("Expected the next event to wait while the first was still retried")
	}

	n, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("DispatchOnce failed: %v", err)
	}
	if n != 1 || !outbox.published[next] {
		t.Errorf("Expected the request to resume once its stuck event was parked, sent=%d", n)
	}
}

func TestNotifyDoesNotBlock(t *testing.T) {
	d := NewDispatcher(newFakeOutbox(), &recordingPublisher{}, time.Second, 10, logger.Nop())
	for i := 0; i < 5; i++ {
		d.Notify()
	}
}

func TestRunDrainsOnNotify(t *testing.T) {
	outbox := newFakeOutbox("material-request.created")
	pub := &recordingPublisher{}
	d := NewDispatcher(outbox, pub, time.Hour, 10, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	d.Notify()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		outbox.mu.Lock()
		ok := outbox.published["a"]
		outbox.mu.Unlock()
		if ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if !outbox.published["a"] {
		t.Error("Expected event to be published after Notify")
	}
}

func TestMultiPublisherTriesAll(t *testing.T) {
	a := &recordingPublisher{failOn: "x"}
	b := &recordingPublisher{}
	err := NewMultiPublisher(a, nil, b).Publish(context.Background(), models.MaterialRequestEvent{ID: "e1", Name: "x"})
	if err == nil {
		t.Error("Expected the failing sink's error to be returned")
	}
	if len(b.names) != 1 {
		t.Error("Expected second publisher to still receive the event")
	}
}

// flakyPublisher fails its first n calls.
type flakyPublisher struct {
	n     int
	calls int
}

func (p *flakyPublisher) Publish(context.Context, models.MaterialRequestEvent) error {
	p.calls++
	if p.calls <= p.n {
		return errors.New("timeout")
	}
	return nil
}

func TestMultiPublisherRetriesOnlyFailedSinks(t *testing.T) {
	ok := &recordingPublisher{}
	flaky := &flakyPublisher{n: 2}
	m := NewMultiPublisher(ok, flaky)
	e := models.MaterialRequestEvent{ID: "e1", Name: "material-request.approved"}

	for i := 0; i < 2; i++ {
		if err := m.Publish(context.Background(), e); err == nil {
			t.Fatalf("attempt %d: expected an error while the second sink is down", i)
		}
	}
	if err := m.Publish(context.Background(), e); err != nil {
		t.Fatalf("Expected the third attempt to succeed, got %v", err)
	}
	if len(ok.names) != 1 {
		t.Errorf("Expected the healthy sink to receive the event once, got %d", len(ok.names))
	}
	if flaky.calls != 3 {
		t.Errorf("Expected the failing sink to be retried each time, got %d calls", flaky.calls)
	}

	// A fresh event starts with no delivery state.
	if err := m.Publish(context.Background(), models.MaterialRequestEvent{ID: "e2", Name: "material-request.sent"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ok.names) != 2 {
		t.Errorf("Expected the healthy sink to receive the second event, got %d", len(ok.names))
	}
}

func TestDispatcherForgetsParkedEvents(t *testing.T) {
	outbox := &fakeOutbox{published: map[string]bool{}, parked: map[string]bool{}, failures: map[string]string{}}
	id := outbox.add("req-1", "poison")
	m := NewMultiPublisher(&recordingPublisher{}, &recordingPublisher{failOn: "poison"})
	d := NewDispatcher(outbox, m, time.Second, 10, logger.Nop())
	d.SetMaxAttempts(1)

	if _, err := d.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("DispatchOnce failed: %v", err)
	}
	if !outbox.parked[id] {
		t.Fatal("Expected the event to be parked")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.delivered[id]; ok {
		t.Error("Expected delivery state to be dropped for a parked event")
	}
}
