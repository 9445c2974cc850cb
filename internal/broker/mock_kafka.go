package broker

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

// MockKafka immediately materializes notifications from published events,
// mirroring what the worker does asynchronously in production.
type MockKafka struct {
	Store           *store.MockStore
	WrittenMessages []kafka.Message // stores messages written via WriteMessages
	ReadMessages    []kafka.Message // queue of messages to be read via ReadMessage
	ShouldFail      bool            // flag to simulate failures during write or read operations
}

// WriteMessages simulates publishing events, applying their notification
// side effects synchronously.
func (m *MockKafka) WriteMessages(messages ...kafka.Message) error {
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}
	if m.Store == nil {
		return errors.New("store is nil")
	}

	for _, msg := range messages {
		m.WrittenMessages = append(m.WrittenMessages, msg)

		ev, err := DecodeEvent(msg.Value)
		if err != nil {
			return err
		}

		// Comment and quote events notify the creator of the target item.
		if ev.Target != nil {
			if target, err := m.Store.GetContent(*ev.Target); err == nil && target.CreatorID != ev.ActorID {
				m.notify(target.CreatorID, notifTypeFor(ev), ev.Content.ID)
			}
		}

		// Mentions notify every pinged account.
		for _, accountID := range ev.Mentions {
			if accountID == ev.ActorID {
				continue
			}
			kind := models.NotifPingPost
			if ev.Content.Kind == models.KindComment {
				kind = models.NotifPingComment
			}
			m.notify(accountID, kind, ev.Content.ID)
		}
	}

	return nil
}

func (m *MockKafka) notify(accountID int64, eventType string, eventID int64) {
	id, _ := m.Store.NextID("notification")
	_ = m.Store.PutNotification(models.Notification{
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
		if ev.Target.Kind == models.KindComment {
			return models.NotifQuoteComment
		}
		return models.NotifQuotePost
	default:
		return models.NotifComment
	}
}

// ReadMessage pops the next queued message.
func (m *MockKafka) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if m.ShouldFail {
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.ReadMessages) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	// Take the first message from the queue and remove it
	msg := m.ReadMessages[0]
	m.ReadMessages = m.ReadMessages[1:]
	return msg, nil
}

// Close is a no-op.
func (m *MockKafka) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(messages ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) Close() error { return nil }
