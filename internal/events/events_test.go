package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kantin/internal/events"
)

func TestNewEnvelope(t *testing.T) {
	env, err := events.New(events.TransactionVerified, "ord-1", map[string]any{"total": 15000})
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "kantin", env.Producer)
	assert.Equal(t, "ord-1", env.CorrelationID)

	var p map[string]int
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 15000, p["total"])
}

func TestNewEnvelopeRejectsUnencodable(t *testing.T) {
	_, err := events.New("x", "", make(chan int))
	assert.Error(t, err)
}

func TestProducerAfterClose(t *testing.T) {
	p := events.NewProducer([]string{"127.0.0.1:1"}, "kantin.ledger", 4)
	env, _ := events.New(events.WithdrawalRequested, "wdr-1", nil)

	// Not started: messages only queue.
	require.NoError(t, p.Publish(context.Background(), env))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), env), events.ErrClosed)
}

func TestProducerPublishHonoursContextWhenFull(t *testing.T) {
	p := events.NewProducer([]string{"127.0.0.1:1"}, "kantin.ledger", 1)
	t.Cleanup(func() { _ = p.Close() })
	env, _ := events.New(events.WithdrawalProcessed, "wdr-1", nil)

	require.NoError(t, p.Publish(context.Background(), env))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, env), context.Canceled)
}

func TestNop(t *testing.T) {
	var p events.Publisher = events.Nop{}
	assert.NoError(t, p.Publish(context.Background(), events.Envelope{}))
}
