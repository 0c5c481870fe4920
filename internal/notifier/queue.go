package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
)

// Publisher is the downstream sink a QueueNotifier drains into.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// QueueNotifier decouples orchestration from notification delivery with a
// bounded in-memory queue and a single drain worker. When the queue is
// full, new notifications are dropped and counted, never blocked on.
type QueueNotifier struct {
	queue     chan *models.Notification
	publisher Publisher
	logger    *logger.Logger

	mu      sync.Mutex
	dropped int64
	closed  bool
	done    chan struct{}
}

// NewQueueNotifier creates a QueueNotifier with the given queue length and
// starts its drain worker.
func NewQueueNotifier(queueLen int, publisher Publisher, log *logger.Logger) *QueueNotifier {
	if queueLen <= 0 {
		queueLen = 256
	}
	n := &QueueNotifier{
		queue:     make(chan *models.Notification, queueLen),
		publisher: publisher,
		logger:    log,
		done:      make(chan struct{}),
	}
	go n.drain()
	return n
}

// Notify enqueues a notification without blocking. A full queue drops the
// event with a warning log. The mutex is held across the enqueue so a
// concurrent Close can never close the channel between the closed check
// and the send.
func (n *QueueNotifier) Notify(event *models.Notification) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	select {
	case n.queue <- event:
		n.mu.Unlock()
		return
	default:
	}
	n.dropped++
	dropped := n.dropped
	n.mu.Unlock()

	n.logger.WithPayload(map[string]interface{}{
		"type":         string(event.Type),
		"benchmarkID":  event.BenchmarkID,
		"totalDropped": dropped,
	}).Warn("Notification queue full, dropping event")
}

// Dropped returns how many notifications have been discarded so far.
func (n *QueueNotifier) Dropped() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

// Close stops accepting notifications, drains the queue, and closes the
// downstream publisher.
func (n *QueueNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	close(n.queue)
	<-n.done
	return n.publisher.Close()
}

func (n *QueueNotifier) drain() {
	defer close(n.done)
	for event := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := n.publisher.Publish(ctx, event.BenchmarkID, event)
		cancel()
		if err != nil {
			n.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "notification_error"}).
				WithPayload(map[string]interface{}{
					"type":        string(event.Type),
					"benchmarkID": event.BenchmarkID,
				}).Warn("Failed to publish notification")
		}
	}
}
