package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"example.com/socialgraph/internal/broker"
	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

var logg = logger.New()

// Worker consumes social events from Kafka and materializes notification
// records concurrently.
type Worker struct {
	store        store.StoreInterface
	reader       broker.EventReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader broker.EventReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}(i)
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			// Block until the message is queued; dropping it here would lose
			// a notification.
			for queued := false; !queued; {
				select {
				case jobs <- msg.Value:
					queued = true
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					logg.Info("worker", "Queue full, retrying enqueue")
				}
			}
		}
	}
}

// processLoop handles event decoding and notification writes concurrently.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}

			ev, err := broker.DecodeEvent(data)
			if err != nil {
				logg.Error("worker", "Invalid event in Kafka message", err)
				continue
			}

			if err := w.handleEvent(ctx, ev); err != nil {
				logg.Error("worker", "Failed to process social event", err)
			}
		}
	}
}

// handleEvent writes the notifications one event causes. The target item's
// creator hears about comments and quotes; every mentioned account gets a
// ping. Self-notifications are dropped.
func (w *Worker) handleEvent(ctx context.Context, ev models.Event) error {
	if ev.Target != nil {
		target, err := w.store.GetContent(*ev.Target)
		if err != nil {
			// Best effort: the target may have been deleted since the event
			// was published.
			if err != store.ErrNotFound {
				return err
			}
		} else if target.CreatorID != ev.ActorID {
			if err := w.notify(target.CreatorID, notifTypeFor(ev), ev.Content.ID); err != nil {
				return err
			}
		}
	}

	if len(ev.Mentions) == 0 {
		logg.Info("worker", "Event processed (ids anonymized)")
		return nil
	}

	pingType := models.NotifPingPost
	if ev.Content.Kind == models.KindComment {
		pingType = models.NotifPingComment
	}

	const fanoutLimit = 20
	var fanoutWG sync.WaitGroup
	semaphore := make(chan struct{}, fanoutLimit)

	for _, accountID := range ev.Mentions {
		if accountID == ev.ActorID {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fanoutWG.Add(1)
			semaphore <- struct{}{}

			go func(id int64) {
				defer fanoutWG.Done()
				defer func() { <-semaphore }()
				if err := w.notify(id, pingType, ev.Content.ID); err != nil {
					logg.Error("worker", "Failed to write ping notification", err)
				}
			}(accountID)
		}
	}

	fanoutWG.Wait()
	logg.Info("worker", "Pings delivered to mentioned accounts (ids anonymized)")
	return nil
}

func (w *Worker) notify(accountID int64, eventType string, eventID int64) error {
	id, err := w.store.NextID("notification")
	if err != nil {
		return err
	}
	return w.store.PutNotification(models.Notification{
		ID:        id,
		AccountID: accountID,
		EventType: eventType,
		EventID:   eventID,
		Created:   time.Now(),
	})
}

func notifTypeFor(ev models.Event) string {
	switch ev.Type {
	case models.EventQuoteCreated:
		if ev.Target != nil && ev.Target.Kind == models.KindComment {
			return models.NotifQuoteComment
		}
		return models.NotifQuotePost
	default:
		return models.NotifComment
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down Kafka reader and Cassandra session.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing Cassandra session")
	w.store.Close()
	return nil
}
