package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"apptly/internal/waitlist"
	"apptly/pkg/logger"
)

// KafkaDispatcherConfig contains configuration for the Kafka offer dispatcher
type KafkaDispatcherConfig struct {
	Brokers          []string
	OfferTopic       string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
}

// DefaultKafkaDispatcherConfig returns a default dispatcher configuration
func DefaultKafkaDispatcherConfig() *KafkaDispatcherConfig {
	return &KafkaDispatcherConfig{
		Brokers:          []string{"localhost:9092"},
		OfferTopic:       "waitlist-offers",
		RetryMax:         3,
		TimeoutMs:        10000,             // 10 seconds
		RequiredAcks:     sarama.WaitForAll, // Wait for all in-sync replicas
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
	}
}

// KafkaDispatcher publishes slot offers to Kafka. It implements
// waitlist.Notifier; a publish error surfaces to the engine, which
// absorbs it per its best-effort dispatch policy.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	config   *KafkaDispatcherConfig
}

// NewKafkaDispatcher creates a new Kafka offer dispatcher
func NewKafkaDispatcher(config *KafkaDispatcherConfig) (*KafkaDispatcher, error) {
	if config == nil {
		config = DefaultKafkaDispatcherConfig()
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites
	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keeps one client's offers on one partition.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaDispatcher{
		producer: producer,
		config:   config,
	}, nil
}

// NotifySlotOffer publishes the offer for a freshly promoted entry
func (d *KafkaDispatcher) NotifySlotOffer(ctx context.Context, entry *waitlist.WaitlistEntry) error {
	message := NewSlotOfferMessage(entry)

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal slot offer: %w", err)
	}

	producerMessage := &sarama.ProducerMessage{
		Topic: d.config.OfferTopic,
		Key:   sarama.StringEncoder(entry.ClientID.String()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("entry_id"), Value: []byte(entry.ID.String())},
			{Key: []byte("message_type"), Value: []byte("slot_offer")},
		},
	}

	_, _, err = d.producer.SendMessage(producerMessage)
	if err != nil {
		return fmt.Errorf("failed to publish slot offer: %w", err)
	}
	return nil
}

// Close shuts down the underlying producer
func (d *KafkaDispatcher) Close() error {
	return d.producer.Close()
}

// LogDispatcher is the fallback notifier used when Kafka is not
// reachable at startup: offers are logged and considered delivered so
// the engine keeps functioning in development setups.
type LogDispatcher struct {
	log *logger.Logger
}

// NewLogDispatcher creates a log-only offer dispatcher
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{log: logger.GetDefault()}
}

// NotifySlotOffer logs the offer instead of delivering it
func (d *LogDispatcher) NotifySlotOffer(ctx context.Context, entry *waitlist.WaitlistEntry) error {
	d.log.InfoWithContext(ctx, "slot offer (log dispatcher)", map[string]interface{}{
		"entry_id":  entry.ID.String(),
		"client_id": entry.ClientID.String(),
	})
	return nil
}
