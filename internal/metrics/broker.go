package metrics

import (
	"context"
	"time"

	"basket-trading/internal/broker"
	"basket-trading/internal/model"
)

// InstrumentBroker wraps b so every remote call is counted and timed. It fits
// factory.WithMiddleware:
//
//	factory.WithMiddleware(m.InstrumentBroker)
func (m *Metrics) InstrumentBroker(b broker.Broker) broker.Broker {
	return &instrumented{Broker: b, m: m, name: string(b.Type())}
}

type instrumented struct {
	broker.Broker
	m    *Metrics
	name string
}

// Unwrap returns the wrapped adapter.
func (i *instrumented) Unwrap() broker.Broker { return i.Broker }

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.m.ObserveCall(i.name, op, start, err)
}

func (i *instrumented) CreateSession(ctx context.Context, a broker.AuthArtifact) (s model.Session, err error) {
	defer func(start time.Time) {
		i.observe("createSession", start, err)
		if err == nil {
			i.m.SessionExpiry.WithLabelValues(i.name).Set(float64(s.ExpiresAt.Unix()))
		}
	}(time.Now())
	return i.Broker.CreateSession(ctx, a)
}

func (i *instrumented) DownloadCatalog(ctx context.Context) (rows []model.UnifiedSymbol, err error) {
	defer func(start time.Time) {
		i.observe("downloadCatalog", start, err)
		if err == nil {
			i.m.ObserveCatalog(i.name, len(rows), time.Now())
		}
	}(time.Now())
	return i.Broker.DownloadCatalog(ctx)
}

func (i *instrumented) GetQuotes(ctx context.Context, in []model.Instrument) (q map[string]model.Quote, err error) {
	defer func(start time.Time) { i.observe("getQuotes", start, err) }(time.Now())
	return i.Broker.GetQuotes(ctx, in)
}

func (i *instrumented) GetLTP(ctx context.Context, in []model.Instrument) (p map[string]float64, err error) {
	defer func(start time.Time) { i.observe("getLTP", start, err) }(time.Now())
	return i.Broker.GetLTP(ctx, in)
}

func (i *instrumented) PlaceOrder(ctx context.Context, o model.Order) (r model.OrderResult, err error) {
	defer func(start time.Time) { i.observe("placeOrder", start, err) }(time.Now())
	return i.Broker.PlaceOrder(ctx, o)
}

func (i *instrumented) ModifyOrder(ctx context.Context, id string, u model.OrderUpdate) (r model.OrderResult, err error) {
	defer func(start time.Time) { i.observe("modifyOrder", start, err) }(time.Now())
	return i.Broker.ModifyOrder(ctx, id, u)
}

func (i *instrumented) CancelOrder(ctx context.Context, id, variety string) (r model.OrderResult, err error) {
	defer func(start time.Time) { i.observe("cancelOrder", start, err) }(time.Now())
	return i.Broker.CancelOrder(ctx, id, variety)
}

func (i *instrumented) GetOrders(ctx context.Context) (o []model.OrderStatus, err error) {
	defer func(start time.Time) { i.observe("getOrders", start, err) }(time.Now())
	return i.Broker.GetOrders(ctx)
}

func (i *instrumented) GetHoldings(ctx context.Context) (h []model.Holding, err error) {
	defer func(start time.Time) { i.observe("getHoldings", start, err) }(time.Now())
	return i.Broker.GetHoldings(ctx)
}

func (i *instrumented) GetPositions(ctx context.Context) (p []model.Position, err error) {
	defer func(start time.Time) { i.observe("getPositions", start, err) }(time.Now())
	return i.Broker.GetPositions(ctx)
}

func (i *instrumented) GetFunds(ctx context.Context) (f model.Funds, err error) {
	defer func(start time.Time) { i.observe("getFunds", start, err) }(time.Now())
	return i.Broker.GetFunds(ctx)
}

func (i *instrumented) GetProfile(ctx context.Context) (p model.Profile, err error) {
	defer func(start time.Time) { i.observe("getProfile", start, err) }(time.Now())
	return i.Broker.GetProfile(ctx)
}
