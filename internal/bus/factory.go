package bus

import (
	"fmt"
	"strings"

	"github.com/scrutineering/scrutineer/internal/config"
	"github.com/scrutineering/scrutineer/internal/pkg/errors"
)

// NewBus creates an event bus from configuration. The "memory" type is the
// default and needs no external services; "kafka" connects to the configured
// brokers and namespaces every topic under cfg.KafkaTopic. When an event log
// path is configured, the returned bus journals every published event to it.
func NewBus(cfg config.BusConfig) (Bus, error) {
	var (
		inner Bus
		err   error
	)

	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		inner = NewMemoryBus()

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "scrutineer"
		}

		inner, err = NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			TopicPrefix:   cfg.KafkaTopic,
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.EventLog == "" {
		return inner, nil
	}

	journal, err := NewJournal(cfg.EventLog, true)
	if err != nil {
		inner.Close()
		return nil, err
	}
	return NewJournaledBus(inner, journal, nil), nil
}
