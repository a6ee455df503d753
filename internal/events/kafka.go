package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	applog "kantin/internal/log"
)

var ErrClosed = errors.New("event producer closed")

// Producer funnels envelopes through a buffered inbox into an async kafka
// writer. Delivery errors are logged, never returned to the caller.
type Producer struct {
	w     *kafka.Writer
	inbox chan kafka.Message
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	if buf <= 0 {
		buf = 256
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					applog.Error(nil, "events.deliver", err, map[string]any{"count": len(msgs)})
				}
			},
		},
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start drains the inbox until Close.
func (p *Producer) Start() {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				applog.Error(nil, "events.write", err, map[string]any{"key": string(m.Key)})
			}
		}
	}()
}

func (p *Producer) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(env.CorrelationID),
		Value: b,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes queued messages and closes the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.inbox)
	started := p.started
	p.mu.Unlock()

	if started {
		<-p.done
	}
	return p.w.Close()
}
