// Package router implements the order router: a registry of named exchange
// adapters, a pre-trade risk gate, and the live-order book. Grounded on
// original_source/include/execution/order_router.hpp, with the cancel-order
// removal timing changed per the specification: the source removed the
// order from the book immediately after calling the adapter; this
// implementation removes it only once OnOrderUpdate observes a terminal
// status, so a cancel request that the venue rejects (or that is still
// working) does not silently drop the order from the live view.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Quant-Club/Quant-Engine/internal/coordination/lock"
	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/exchange"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/metrics"
)

// RiskGate is the subset of risk.Manager the router depends on.
type RiskGate interface {
	CheckOrderRisk(order domain.Order) (accepted bool, reason domain.RejectReason)
}

// AuditSink receives a best-effort record of every routed order for the
// audit store. It is called synchronously on SubmitOrder's goroutine.
type AuditSink interface {
	RecordOrderSubmitted(exchangeName string, orderID domain.OrderId, order domain.Order)
	RecordOrderFailed(exchangeName string, order domain.Order, err error)
}

// Router is the order router described in section 4.4.
type Router struct {
	risk RiskGate
	lock lock.DistributedLock
	log  *logging.Logger
	sink AuditSink

	mu               sync.RWMutex
	exchanges        map[string]exchange.Adapter
	orderBook        map[domain.OrderId]bookedOrder
	activeByExchange map[string]map[domain.OrderId]struct{}
}

type bookedOrder struct {
	order        domain.Order
	exchangeName string
}

// New constructs a Router. lk may be a lock.NopLock for single-instance
// deployments.
func New(risk RiskGate, lk lock.DistributedLock, log *logging.Logger, sink AuditSink) *Router {
	if lk == nil {
		lk = lock.NewNopLock()
	}
	return &Router{
		risk:             risk,
		lock:             lk,
		log:              log,
		sink:             sink,
		exchanges:        make(map[string]exchange.Adapter),
		orderBook:        make(map[domain.OrderId]bookedOrder),
		activeByExchange: make(map[string]map[domain.OrderId]struct{}),
	}
}

// RegisterExchange adds a named adapter to the registry.
func (r *Router) RegisterExchange(name string, adapter exchange.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges[name] = adapter
	if r.log != nil {
		r.log.Info("router: registered exchange", "exchange", name)
	}
}

// UnregisterExchange removes a named adapter. It fails if live orders remain
// on that exchange; the caller must cancel them first.
func (r *Router) UnregisterExchange(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exchanges[name]; !ok {
		return domain.ErrNotFound
	}
	if active := r.activeByExchange[name]; len(active) > 0 {
		return fmt.Errorf("router: %d live orders remain on %s", len(active), name)
	}
	delete(r.exchanges, name)
	delete(r.activeByExchange, name)
	return nil
}

func (r *Router) getExchange(name string) (exchange.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.exchanges[name]
	return a, ok
}

// SubmitOrder resolves the named exchange, gates the order through risk, and
// forwards it to the adapter. On success the order is recorded in the live
// book.
func (r *Router) SubmitOrder(ctx context.Context, order domain.Order, exchangeName string) (domain.OrderId, error) {
	if err := order.Validate(); err != nil {
		return "", err
	}
	adapter, ok := r.getExchange(exchangeName)
	if !ok {
		return "", domain.ErrUnknownExchange
	}

	if accepted, reason := r.risk.CheckOrderRisk(order); !accepted {
		return "", &domain.RiskRejectedError{Reason: reason}
	}

	lockKey := fmt.Sprintf("%s:%s", exchangeName, order.Symbol)
	if acquired, _ := r.lock.TryLock(ctx, lockKey, 5*time.Second); acquired {
		defer r.lock.Unlock(ctx, lockKey)
	}
	// Contention on the distributed lock does not block submission: it
	// only best-effort serializes cross-instance bookkeeping.

	start := time.Now()
	orderID, err := adapter.SubmitOrder(ctx, order)
	metrics.ObserveOrderSubmitDuration(exchangeName, time.Since(start).Seconds())
	if err != nil {
		metrics.RecordOrderFailed(exchangeName, string(order.Symbol), "adapter_error")
		if r.sink != nil {
			r.sink.RecordOrderFailed(exchangeName, order, err)
		}
		return "", &domain.AdapterFailureError{Cause: err}
	}

	r.recordOrder(orderID, order, exchangeName)
	metrics.RecordOrderSubmitted(exchangeName, string(order.Symbol), string(order.Side))
	if r.sink != nil {
		r.sink.RecordOrderSubmitted(exchangeName, orderID, order)
	}
	if r.log != nil {
		r.log.Info("router: order submitted", "exchange", exchangeName, "orderId", string(orderID))
	}
	return orderID, nil
}

func (r *Router) recordOrder(orderID domain.OrderId, order domain.Order, exchangeName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderBook[orderID] = bookedOrder{order: order, exchangeName: exchangeName}
	if r.activeByExchange[exchangeName] == nil {
		r.activeByExchange[exchangeName] = make(map[domain.OrderId]struct{})
	}
	r.activeByExchange[exchangeName][orderID] = struct{}{}
}

// CancelOrder requests cancellation from the adapter. It does not remove the
// order from the live book -- that happens only once OnOrderUpdate reports a
// terminal status for it.
func (r *Router) CancelOrder(ctx context.Context, orderID domain.OrderId, exchangeName string) error {
	adapter, ok := r.getExchange(exchangeName)
	if !ok {
		return domain.ErrUnknownExchange
	}
	if err := adapter.CancelOrder(ctx, orderID); err != nil {
		return &domain.AdapterFailureError{Cause: err}
	}
	if r.log != nil {
		r.log.Info("router: cancel requested", "exchange", exchangeName, "orderId", string(orderID))
	}
	return nil
}

// SubscribeMarketData asks the named exchange adapter to start streaming
// symbol on the wire.
func (r *Router) SubscribeMarketData(exchangeName string, symbol domain.Symbol) error {
	adapter, ok := r.getExchange(exchangeName)
	if !ok {
		return domain.ErrUnknownExchange
	}
	return adapter.SubscribeMarketData(symbol)
}

// UnsubscribeMarketData asks the named exchange adapter to stop streaming
// symbol on the wire.
func (r *Router) UnsubscribeMarketData(exchangeName string, symbol domain.Symbol) error {
	adapter, ok := r.getExchange(exchangeName)
	if !ok {
		return domain.ErrUnknownExchange
	}
	return adapter.UnsubscribeMarketData(symbol)
}

// GetOrderStatus delegates to the adapter: the router's book is advisory,
// not authoritative for status.
func (r *Router) GetOrderStatus(ctx context.Context, orderID domain.OrderId, exchangeName string) (domain.OrderStatus, error) {
	adapter, ok := r.getExchange(exchangeName)
	if !ok {
		return "", domain.ErrUnknownExchange
	}
	status, err := adapter.GetOrderStatus(ctx, orderID)
	if err != nil {
		return "", &domain.AdapterFailureError{Cause: err}
	}
	return status, nil
}

// GetActiveOrders returns a snapshot of live orders. An empty exchangeName
// returns orders across every exchange.
func (r *Router) GetActiveOrders(exchangeName string) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Order
	if exchangeName != "" {
		for id := range r.activeByExchange[exchangeName] {
			out = append(out, r.orderBook[id].order)
		}
		return out
	}
	for _, bo := range r.orderBook {
		out = append(out, bo.order)
	}
	return out
}

// OnOrderUpdate removes the order from the live book once its status is
// terminal.
func (r *Router) OnOrderUpdate(update domain.OrderUpdate) {
	if !update.Status.IsTerminal() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	bo, ok := r.orderBook[update.OrderID]
	if !ok {
		return
	}
	delete(r.orderBook, update.OrderID)
	if set := r.activeByExchange[bo.exchangeName]; set != nil {
		delete(set, update.OrderID)
	}
}
