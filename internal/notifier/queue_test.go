package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
)

// capturePublisher records published notifications, optionally blocking to
// simulate a slow broker.
type capturePublisher struct {
	mu       sync.Mutex
	events   []*models.Notification
	blockFor time.Duration
	closed   bool
}

func (p *capturePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	if p.blockFor > 0 {
		time.Sleep(p.blockFor)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, value.(*models.Notification))
	return nil
}

func (p *capturePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestQueueNotifierDeliversInOrder(t *testing.T) {
	pub := &capturePublisher{}
	n := NewQueueNotifier(8, pub, logger.New("NotifierTest", "", ""))

	for _, typ := range []models.NotificationType{models.NotifyBenchmarkCreated, models.NotifyBenchmarkProgress, models.NotifyBenchmarkCompleted} {
		n.Notify(NewEvent(typ, "run-1", "org-1", "user-1", "msg", nil))
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := pub.count(); got != 3 {
		t.Fatalf("Expected 3 delivered events, got %d", got)
	}
	if pub.events[0].Type != models.NotifyBenchmarkCreated || pub.events[2].Type != models.NotifyBenchmarkCompleted {
		t.Errorf("Events delivered out of order: %v, %v", pub.events[0].Type, pub.events[2].Type)
	}
	if !pub.closed {
		t.Error("Close should close the downstream publisher")
	}
}

func TestQueueNotifierNeverBlocksWhenFull(t *testing.T) {
	pub := &capturePublisher{blockFor: 200 * time.Millisecond}
	n := NewQueueNotifier(1, pub, logger.New("NotifierTest", "", ""))
	defer n.Close()

	start := time.Now()
	for i := 0; i < 20; i++ {
		n.Notify(NewEvent(models.NotifyBenchmarkProgress, "run-1", "org-1", "user-1", "msg", nil))
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Notify blocked for %v on a saturated queue", elapsed)
	}
	if n.Dropped() == 0 {
		t.Error("A saturated queue should report dropped events")
	}
}

func TestQueueNotifierNotifyIsSafeDuringClose(t *testing.T) {
	// A saturated queue with a slow publisher maximizes the window where
	// Notify and Close overlap. A send on the closed channel would panic.
	pub := &capturePublisher{blockFor: 20 * time.Millisecond}
	n := NewQueueNotifier(1, pub, logger.New("NotifierTest", "", ""))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				n.Notify(NewEvent(models.NotifyBenchmarkProgress, "run-1", "org-1", "user-1", "msg", nil))
			}
		}()
	}

	time.Sleep(time.Millisecond)
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	wg.Wait()
}

func TestQueueNotifierIgnoresEventsAfterClose(t *testing.T) {
	pub := &capturePublisher{}
	n := NewQueueNotifier(8, pub, logger.New("NotifierTest", "", ""))
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Must not panic on the closed channel.
	n.Notify(NewEvent(models.NotifyBenchmarkProgress, "run-1", "org-1", "user-1", "msg", nil))
	if got := pub.count(); got != 0 {
		t.Errorf("Expected no events after close, got %d", got)
	}
}
