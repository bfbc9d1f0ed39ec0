package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetkit/workerstd/v1/clients"
	"github.com/fleetkit/workerstd/v1/worker"
)

const ordersDB = "orders-db"

var (
	errInvalidQuantity = errors.New("quantity must be positive")
	errNoDatabase      = errors.New("orders database is not available")
)

// Order is the payload of orders.created. The codec treats orders without id
// or sku as malformed.
type Order struct {
	ID  string `json:"id" validate:"required"`
	SKU string `json:"sku" validate:"required"`
	Qty int    `json:"qty"`
}

type orderStore interface {
	Save(ctx context.Context, orders ...Order) error
}

type handlerLogger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

type orderHandler struct {
	store orderStore
	log   handlerLogger
}

// Handle stores one order. Orders without a positive quantity can never
// succeed and go to the dead letter queue; storage errors are retried later.
func (h *orderHandler) Handle(ctx context.Context, msg worker.Message[Order]) worker.Outcome {
	o := msg.Payload
	if o.Qty <= 0 {
		return worker.DeadLetter(fmt.Errorf("order %s: %w", o.ID, errInvalidQuantity))
	}
	if err := h.store.Save(ctx, o); err != nil {
		return worker.Retry(fmt.Errorf("save order %s: %w", o.ID, err))
	}
	h.log.InfoWithContext(ctx, "order stored", nil, map[string]interface{}{
		"order_id":    o.ID,
		"retry_count": msg.RetryCount,
	})
	return worker.Success()
}

// HandleBatch stores the valid orders of a batch in one round trip.
func (h *orderHandler) HandleBatch(ctx context.Context, batch worker.Batch[Order]) error {
	valid := make([]Order, 0, len(batch.Messages))
	for _, o := range batch.Messages {
		if o.Qty <= 0 {
			h.log.WarnWithContext(ctx, "skipping order", errInvalidQuantity, map[string]interface{}{"order_id": o.ID})
			continue
		}
		valid = append(valid, o)
	}
	if len(valid) == 0 {
		return nil
	}
	if err := h.store.Save(ctx, valid...); err != nil {
		return fmt.Errorf("save %d orders: %w", len(valid), err)
	}
	h.log.InfoWithContext(ctx, "orders stored", nil, map[string]interface{}{"count": len(valid)})
	return nil
}

const insertOrder = `INSERT INTO orders (id, sku, qty) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`

// pgxStore writes orders through the pool registered as orders-db.
type pgxStore struct {
	state *clients.State
}

func (s pgxStore) Save(ctx context.Context, orders ...Order) error {
	pool, ok := clients.Client[*pgxpool.Pool](s.state, ordersDB)
	if !ok {
		return errNoDatabase
	}
	if len(orders) == 1 {
		o := orders[0]
		_, err := pool.Exec(ctx, insertOrder, o.ID, o.SKU, o.Qty)
		return err
	}

	b := &pgx.Batch{}
	for _, o := range orders {
		b.Queue(insertOrder, o.ID, o.SKU, o.Qty)
	}
	return pool.SendBatch(ctx, b).Close()
}

// logStore is used when no database is configured.
type logStore struct {
	log handlerLogger
}

func (s logStore) Save(ctx context.Context, orders ...Order) error {
	for _, o := range orders {
		s.log.InfoWithContext(ctx, "order received", nil, map[string]interface{}{
			"order_id": o.ID,
			"sku":      o.SKU,
			"qty":      o.Qty,
		})
	}
	return nil
}
