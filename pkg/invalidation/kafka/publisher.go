package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"

	"github.com/spatialkit/h3-boundary/internal/invalidation"
)

// Publisher delivers invalidation events synchronously. It serves
// operator tooling where the caller wants delivery confirmed before
// exiting, not the request path.
type Publisher struct {
	topic string
	prod  sarama.SyncProducer
}

func NewPublisher(cfg InvalidationConfig) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	if err := applyNet(sc, cfg); err != nil {
		return nil, err
	}

	prod, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create sync producer: %w", err)
	}
	return &Publisher{topic: cfg.Topic, prod: prod}, nil
}

// Publish validates and sends one event, keyed by its selector so
// events for the same target land on the same partition in order.
func (p *Publisher) Publish(ev invalidation.Event) (partition int32, offset int64, err error) {
	if err := ev.Validate(); err != nil {
		return 0, 0, fmt.Errorf("validate event: %w", err)
	}
	w := WireEvent{
		Version: ev.Version,
		Scope:   string(ev.Scope),
		Cell:    ev.Cell,
		Res:     ev.Res,
		Reason:  ev.Reason,
		TS:      ev.TS,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(w.selector()),
		Value: sarama.ByteEncoder(b),
	}
	return p.prod.SendMessage(msg)
}

func (p *Publisher) Close() error {
	return p.prod.Close()
}
