package audit

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaSink is a best-effort second writer on the audit channel,
// adapted from the teacher's pkg/stream/kafka_producer.go: the same
// sarama AsyncProducer shape, simplified to a single topic since the
// audit event stream has no severity/framework-based routing to do.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// KafkaSinkConfig configures the optional remote audit mirror.
type KafkaSinkConfig struct {
	Brokers     []string
	Topic       string
	Compression string // none | gzip | snappy | lz4
	RequiredAcks string // none | leader | all
}

// DefaultKafkaSinkConfig mirrors the teacher's DefaultStreamerConfig
// defaults, retargeted at a single audit topic.
func DefaultKafkaSinkConfig() KafkaSinkConfig {
	return KafkaSinkConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "ongarde.audit",
		Compression:  "snappy",
		RequiredAcks: "all",
	}
}

// NewKafkaSink connects to the configured brokers and starts the
// success/error drain goroutines.
func NewKafkaSink(cfg KafkaSinkConfig, log *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}

	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	switch cfg.Compression {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}
	switch cfg.RequiredAcks {
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	case "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		sc.Producer.RequiredAcks = sarama.WaitForAll
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultKafkaSinkConfig().Topic
	}

	k := &KafkaSink{producer: producer, topic: topic, log: log}
	k.wg.Add(2)
	go k.handleSuccesses()
	go k.handleErrors()
	return k, nil
}

// Write publishes e to the audit topic. Failures are logged, never
// propagated — the primary SQLite sink is authoritative.
func (k *KafkaSink) Write(e Event) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		if k.log != nil {
			k.log.Warn("marshal audit event for kafka failed", zap.Error(err))
		}
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.ScanID),
		Value: sarama.ByteEncoder(data),
	}
	select {
	case k.producer.Input() <- msg:
	default:
		if k.log != nil {
			k.log.Warn("kafka producer input full, dropping audit event", zap.String("scan_id", e.ScanID))
		}
	}
}

func (k *KafkaSink) handleSuccesses() {
	defer k.wg.Done()
	for range k.producer.Successes() {
	}
}

func (k *KafkaSink) handleErrors() {
	defer k.wg.Done()
	for err := range k.producer.Errors() {
		if err != nil && k.log != nil {
			k.log.Warn("kafka audit produce error", zap.String("topic", err.Msg.Topic), zap.Error(err.Err))
		}
	}
}

// Close flushes and closes the producer.
func (k *KafkaSink) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	k.producer.AsyncClose()
	k.wg.Wait()
	return nil
}
