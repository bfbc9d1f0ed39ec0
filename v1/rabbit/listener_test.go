package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderDecoder struct{}

func (orderDecoder) Decode(body []byte) (order, error) {
	var o order
	if err := json.Unmarshal(body, &o); err != nil {
		return o, errors.New("malformed")
	}
	return o, nil
}

func TestListenerSkipsUndecodableMessages(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{getQueue: []amqp.Delivery{
		{Acknowledger: ack, DeliveryTag: 1, Body: []byte("garbage")},
		{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`{"id":5,"qty":1}`)},
	}}
	pool := newTestPool(t, broker)
	listener := NewListener[order](pool, "orders", orderDecoder{}, newQuietLogger(t))

	got, err := listener.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, order{ID: 5, Qty: 1}, got)
	assert.Equal(t, []uint64{1}, ack.reject)
	assert.Equal(t, []uint64{2}, ack.acks)
}

func TestListenerAllStopsWithContext(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{getQueue: []amqp.Delivery{
		{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"id":1,"qty":1}`)},
		{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`{"id":2,"qty":1}`)},
	}}
	pool := newTestPool(t, broker)
	listener := NewListener[order](pool, "orders", orderDecoder{}, newQuietLogger(t))
	listener.pollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var ids []int
	for msg, err := range listener.All(ctx) {
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []int{1, 2}, ids)
}
