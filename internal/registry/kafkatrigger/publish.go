package kafkatrigger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Publisher sends refresh events, keyed by collection so that events for one
// collection stay ordered on a partition.
type Publisher struct {
	prod  sarama.SyncProducer
	topic string
}

// Dial connects a synchronous producer to brokers.
func Dial(brokers []string, topic string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return NewPublisher(prod, topic), nil
}

func NewPublisher(prod sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{prod: prod, topic: topic}
}

// Publish validates ev, stamping Version and TS when unset.
func (p *Publisher) Publish(ev Event) (partition int32, offset int64, err error) {
	if ev.Version == 0 {
		ev.Version = 1
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return 0, 0, err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return 0, 0, err
	}
	msg := &sarama.ProducerMessage{Topic: p.topic, Value: sarama.ByteEncoder(raw)}
	if ev.Collection != "" {
		msg.Key = sarama.StringEncoder(ev.Collection)
	}
	partition, offset, err = p.prod.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("send message: %w", err)
	}
	return partition, offset, nil
}

func (p *Publisher) Close() error { return p.prod.Close() }
