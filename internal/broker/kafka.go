package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/socialgraph/internal/models"
)

// EventWriter defines an interface for publishing social events to Kafka.
type EventWriter interface {
	WriteMessages(messages ...kafka.Message) error
	Close() error
}

// EventReader defines an interface for consuming social events from Kafka.
type EventReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig holds configuration parameters for Kafka.
type KafkaConfig struct {
	Brokers      []string      // list of Kafka brokers
	Topic        string        // topic name
	Partition    int           // partition number (used for low-level writes)
	WriteTimeout time.Duration // write timeout duration
	ReadTimeout  time.Duration // read timeout duration (used for consumer group)
	GroupID      string        // consumer group ID
}

// Publish marshals one social event and writes it with the event type as the
// message key.
func Publish(w EventWriter, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return w.WriteMessages(kafka.Message{
		Key:   []byte(ev.Type),
		Value: data,
	})
}

// DecodeEvent parses a social event from a Kafka message payload.
func DecodeEvent(data []byte) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.Event{}, err
	}
	if ev.Type == "" {
		return models.Event{}, errors.New("event without type")
	}
	return ev, nil
}

// RealEventWriter implements EventWriter using kafka.Conn (low-level writes).
type RealEventWriter struct {
	conn   *kafka.Conn
	config KafkaConfig
}

// NewEventWriter creates a new Kafka writer connection.
func NewEventWriter(cfg KafkaConfig) (*RealEventWriter, error) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	conn, err := kafka.DialLeader(context.Background(), "tcp", cfg.Brokers[0], cfg.Topic, cfg.Partition)
	if err != nil {
		return nil, err
	}

	return &RealEventWriter{
		conn:   conn,
		config: cfg,
	}, nil
}

func (w *RealEventWriter) WriteMessages(messages ...kafka.Message) error {
	if w.conn == nil {
		return errors.New("kafka connection is nil")
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	_, err := w.conn.WriteMessages(messages...)
	return err
}

func (w *RealEventWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// RealEventReader implements EventReader using kafka.Reader (consumer group).
type RealEventReader struct {
	reader *kafka.Reader
}

// NewEventReader creates a new Kafka consumer group reader.
func NewEventReader(cfg KafkaConfig) EventReader {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
	return &RealEventReader{reader: r}
}

func (r *RealEventReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *RealEventReader) Close() error {
	return r.reader.Close()
}
