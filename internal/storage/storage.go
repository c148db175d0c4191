package storage

import (
	"context"

	"forwardlock/internal/model"
)

// Storage is the trade journal. Entries for the same trade ID supersede each
// other in write order.
type Storage interface {
	PutTradeBatch(ctx context.Context, entries []model.TradeEntry) error
	// FindByTxHash returns the latest entry for a transaction hash.
	FindByTxHash(ctx context.Context, txHash string) (model.TradeEntry, bool, error)
}

// Discard is a Storage that keeps nothing.
type Discard struct{}

func (Discard) PutTradeBatch(context.Context, []model.TradeEntry) error { return nil }

func (Discard) FindByTxHash(context.Context, string) (model.TradeEntry, bool, error) {
	return model.TradeEntry{}, false, nil
}
