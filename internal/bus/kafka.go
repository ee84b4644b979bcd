package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/pkg/logger"
)

// KafkaConfig holds the connection settings for a Kafka-backed bus.
type KafkaConfig struct {
	// Brokers lists the broker addresses.
	Brokers []string

	// ConsumerGroup identifies this service's consumer group.
	ConsumerGroup string

	// ClientID identifies the client to the brokers. Defaults to
	// "scrutineer-bus".
	ClientID string

	// TopicPrefix namespaces every topic, e.g. "scrutineer" turns
	// "analysis.completed" into "scrutineer.analysis.completed".
	TopicPrefix string

	// Version is the Kafka protocol version, default "2.8.0".
	Version string
}

// KafkaBus publishes events through a sarama sync producer and consumes
// subscriptions through a consumer group.
type KafkaBus struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	consumer sarama.ConsumerGroup
	client   sarama.Client
	log      *logger.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	consumerWg   sync.WaitGroup
	consumerStop chan struct{}
}

// NewKafkaBus connects to the configured brokers and returns a bus that
// publishes synchronously with full-ISR acknowledgement.
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.CodeValidation, "kafka brokers cannot be empty")
	}
	if cfg.ConsumerGroup == "" {
		return nil, errors.New(errors.CodeValidation, "kafka consumer group cannot be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "scrutineer-bus"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}

	saramaCfg, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka client", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka producer", err)
	}

	consumer, err := sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka consumer group", err)
	}

	return &KafkaBus{
		config:       cfg,
		producer:     producer,
		consumer:     consumer,
		client:       client,
		log:          logger.Default(),
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
	}, nil
}

// newSaramaConfig translates KafkaConfig into a sarama client config.
func newSaramaConfig(cfg KafkaConfig) (*sarama.Config, error) {
	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid kafka version", err)
	}

	c := sarama.NewConfig()
	c.Version = version
	c.ClientID = cfg.ClientID
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.Retry.Max = 3
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	c.Consumer.Offsets.Initial = sarama.OffsetNewest
	c.Consumer.Return.Errors = true
	c.Net.DialTimeout = 10 * time.Second
	c.Net.ReadTimeout = 10 * time.Second
	c.Net.WriteTimeout = 10 * time.Second
	return c, nil
}

// wireTopic maps a logical topic to the Kafka topic name under the
// configured namespace prefix.
func (b *KafkaBus) wireTopic(topic string) string {
	if b.config.TopicPrefix == "" {
		return topic
	}
	return b.config.TopicPrefix + "." + topic
}

// partitionKey keeps the lifecycle events of one analysis on the same
// partition so consumers see requested/completed in order.
func partitionKey(event Event) string {
	if event.CorrelationID != "" {
		return event.CorrelationID
	}
	return event.ID
}

// Publish sends the event to the wire topic for this logical topic.
func (b *KafkaBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: b.wireTopic(topic),
		Key:   sarama.StringEncoder(partitionKey(event)),
		Value: sarama.ByteEncoder(data),
	}
	if event.CorrelationID != "" {
		msg.Headers = []sarama.RecordHeader{{
			Key:   []byte("correlation_id"),
			Value: []byte(event.CorrelationID),
		}}
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to publish to kafka", err)
	}

	return nil
}

// Subscribe registers a handler and, for the first handler on a topic,
// starts a consumer loop for it.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	firstHandler := len(b.handlers[topic]) == 0
	b.handlers[topic] = append(b.handlers[topic], handler)

	if firstHandler {
		b.consumerWg.Add(1)
		go b.consumeTopic(topic)
	}

	return nil
}

// consumeTopic runs the consumer-group session loop for one logical topic
// until the bus is closed. Consume returns whenever the group rebalances,
// so it is called in a loop with a small backoff on error.
func (b *KafkaBus) consumeTopic(topic string) {
	defer b.consumerWg.Done()

	handler := &groupHandler{bus: b, topic: topic}
	wireTopic := b.wireTopic(topic)

	for {
		select {
		case <-b.consumerStop:
			return
		default:
		}

		if err := b.consumer.Consume(context.Background(), []string{wireTopic}, handler); err != nil {
			b.log.Warn("kafka consumer error",
				"topic", wireTopic,
				"error", err.Error(),
			)
		}

		select {
		case <-b.consumerStop:
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

// Close stops the consumer loops and releases the Kafka resources. It is
// safe to call more than once.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.consumerStop)
	b.consumerWg.Wait()

	var errs []error
	if err := b.consumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close consumer: %w", err))
	}
	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close producer: %w", err))
	}
	if err := b.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close client: %w", err))
	}

	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()

	if len(errs) > 0 {
		return errors.New(errors.CodeInternal, fmt.Sprintf("errors during close: %v", errs))
	}
	return nil
}

// groupHandler adapts the bus's topic handlers to
// sarama.ConsumerGroupHandler.
type groupHandler struct {
	bus   *KafkaBus
	topic string
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim decodes each message and runs every handler registered for
// the topic. Messages that fail to decode or whose handlers error are
// still marked consumed; the bus is at-most-once on the handler side.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg := <-claim.Messages():
			if msg == nil {
				return nil
			}

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				h.bus.log.Warn("failed to unmarshal event from kafka",
					"topic", h.topic,
					"error", err.Error(),
				)
				session.MarkMessage(msg, "")
				continue
			}

			h.bus.mu.RLock()
			handlers := h.bus.handlers[h.topic]
			h.bus.mu.RUnlock()

			for _, handler := range handlers {
				if err := handler(session.Context(), event); err != nil {
					h.bus.log.Warn("event handler failed",
						"topic", h.topic,
						"event_id", event.ID,
						"error", err.Error(),
					)
				}
			}

			session.MarkMessage(msg, "")
		}
	}
}

// ParseKafkaBrokers splits a comma-separated broker list, trimming
// whitespace around each address.
func ParseKafkaBrokers(brokersStr string) []string {
	if brokersStr == "" {
		return nil
	}
	brokers := strings.Split(brokersStr, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	return brokers
}
