// Package feed publishes relayed collaboration traffic to Kafka for
// downstream consumers such as audit or analytics.
package feed

import (
	"context"
	"sync"
	"time"

	"school-collab/internal/protocol"

	"github.com/IBM/sarama"
	"github.com/golang/glog"
)

// KafkaDispatcher is a bounded local queue drained by workers that send
// with limited retries. Enqueue never waits on Kafka itself.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan protocol.RealtimeEvent
	wg    sync.WaitGroup

	closeOnce sync.Once

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultOptions() KafkaDispatcherOptions {
	return KafkaDispatcherOptions{
		QueueSize:   10_000,
		Workers:     4,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  time.Second,
	}
}

// NewSyncProducer connects a producer configured for the dispatcher
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	kafkaCfg := sarama.NewConfig()
	// SyncProducer requires Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	return sarama.NewSyncProducer(brokers, kafkaCfg)
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, opt KafkaDispatcherOptions) *KafkaDispatcher {
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan protocol.RealtimeEvent, opt.QueueSize),
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}

	d.start()
	return d
}

// Enqueue puts the event on the local queue, waiting while the queue is
// full until ctx is done. Delivery is best effort.
func (d *KafkaDispatcher) Enqueue(ctx context.Context, ev protocol.RealtimeEvent) error {
	select {
	case d.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

// Close drains the queue and closes the producer. No Enqueue may follow.
func (d *KafkaDispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.queue)
		d.wg.Wait()
		if d.producer != nil {
			err = d.producer.Close()
		}
	})
	return err
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for ev := range d.queue {
		d.sendWithRetry(workerID, ev)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, ev protocol.RealtimeEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		err := d.sendOnce(ev)
		if err == nil {
			return
		}

		if attempt == d.maxRetry {
			glog.Warningf("[feed]send failed, drop event type=%s key=%s worker=%d err=%v",
				ev.Type, messageKey(ev), workerID, err)
			return
		}

		// backoff doubles each attempt
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *KafkaDispatcher) sendOnce(ev protocol.RealtimeEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(messageKey(ev)),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(ev.Type)},
		},
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}

// messageKey keeps every operation on one entity in one partition
func messageKey(ev protocol.RealtimeEvent) string {
	if ev.Operation != nil && ev.Operation.EntityID != "" {
		return ev.Operation.EntityID
	}
	return ev.UserID
}
