package storage

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"github.com/celllabel/celled/celled"
)

// ActivityConfig configures the Kafka activity log.  An empty server list
// disables it.
type ActivityConfig struct {
	Servers []string `toml:"servers"`
	Topic   string   `toml:"topic"`
}

// ActivityLog publishes editing activity to a Kafka topic.  Publishing is
// asynchronous and best-effort; failures are logged, never surfaced to the
// editing path.
type ActivityLog struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewActivityLog connects the producer.  Returns nil with no error when the
// config is empty.
func NewActivityLog(cfg ActivityConfig) (*ActivityLog, error) {
	if len(cfg.Servers) == 0 {
		return nil, nil
	}
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	producer, err := sarama.NewAsyncProducer(cfg.Servers, config)
	if err != nil {
		return nil, err
	}
	a := &ActivityLog{producer: producer, topic: cfg.Topic}
	go func() {
		for pErr := range producer.Errors() {
			celled.Errorf("unable to publish activity to kafka: %v\n", pErr.Err)
		}
	}()
	celled.Infof("activity log publishing to kafka topic %q via %v\n", cfg.Topic, cfg.Servers)
	return a, nil
}

// Event is one activity record.
type Event struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session"`
	Project string    `json:"project,omitempty"`
	Action  string    `json:"action"`
	Frames  []int     `json:"frames,omitempty"`
	Elapsed int64     `json:"elapsed_ms,omitempty"`
}

// Publish sends one event.  A nil log drops it.
func (a *ActivityLog) Publish(e Event) {
	if a == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	value, err := json.Marshal(e)
	if err != nil {
		celled.Errorf("unable to marshal activity event: %v\n", err)
		return
	}
	a.producer.Input() <- &sarama.ProducerMessage{
		Topic: a.topic,
		Value: sarama.ByteEncoder(value),
	}
}

// Close flushes and shuts down the producer.  A nil log is a no-op.
func (a *ActivityLog) Close() error {
	if a == nil {
		return nil
	}
	return a.producer.Close()
}
