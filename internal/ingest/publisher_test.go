package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equitystream/equitystream/internal/metrics"
	"github.com/equitystream/equitystream/internal/model"
)

type fakeStore struct {
	insertedPrints int
	insertedQuotes int
	failPrint      bool
}

func (f *fakeStore) InsertPrint(ctx context.Context, p model.Print) error {
	if f.failPrint {
		return errors.New("store down")
	}
	f.insertedPrints++
	return nil
}

func (f *fakeStore) InsertQuote(ctx context.Context, q model.Quote) error {
	f.insertedQuotes++
	return nil
}

type fakeBus struct {
	published int
	failNext  bool
}

func (f *fakeBus) PublishJSON(ctx context.Context, subject string, payload any) error {
	if f.failNext {
		f.failNext = false
		return errors.New("bus down")
	}
	f.published++
	return nil
}

func validPrint() model.Print {
	return model.Print{
		UnderlyingID: "AAPL",
		Ts:           1000,
		Seq:          1,
		Price:        decimal.NewFromInt(10),
		Size:         100,
	}
}

func TestPublisher_StoreFailureSkipsPublish(t *testing.T) {
	store := &fakeStore{failPrint: true}
	busFake := &fakeBus{}
	p := NewPublisher(store, busFake, false, 0, zap.NewNop(), metrics.New(zap.NewNop()))

	p.handleTrade(context.Background(), validPrint())

	if busFake.published != 0 {
		t.Errorf("expected no publish after store failure, got %d", busFake.published)
	}
}

func TestPublisher_BusFailureDoesNotRollBackStore(t *testing.T) {
	store := &fakeStore{}
	busFake := &fakeBus{failNext: true}
	p := NewPublisher(store, busFake, false, 0, zap.NewNop(), metrics.New(zap.NewNop()))

	p.handleTrade(context.Background(), validPrint())

	if store.insertedPrints != 1 {
		t.Errorf("expected store insert to persist despite publish failure, got %d", store.insertedPrints)
	}
}

func TestPublisher_ShutdownDropsEvents(t *testing.T) {
	store := &fakeStore{}
	busFake := &fakeBus{}
	p := NewPublisher(store, busFake, false, 0, zap.NewNop(), metrics.New(zap.NewNop()))

	p.Shutdown()
	p.handleTrade(context.Background(), validPrint())

	if store.insertedPrints != 0 || busFake.published != 0 {
		t.Errorf("expected no activity after shutdown")
	}
}

func TestPublisher_InvalidPrintRejected(t *testing.T) {
	store := &fakeStore{}
	busFake := &fakeBus{}
	p := NewPublisher(store, busFake, false, 0, zap.NewNop(), metrics.New(zap.NewNop()))

	invalid := validPrint()
	invalid.Price = decimal.NewFromInt(-1)
	p.handleTrade(context.Background(), invalid)

	if store.insertedPrints != 0 {
		t.Errorf("expected invalid print to never reach the store")
	}
}
