package token

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"forwardlock/internal/chain"
)

// MetaCache memoizes token metadata by address. Metadata never changes, so
// entries are never evicted.
type MetaCache struct {
	caller chain.Caller
	logger *zap.Logger

	mu   sync.RWMutex
	data map[common.Address]Meta
}

func NewMetaCache(caller chain.Caller, logger *zap.Logger) *MetaCache {
	return &MetaCache{caller: caller, logger: logger, data: make(map[common.Address]Meta)}
}

func (c *MetaCache) get(address common.Address) (Meta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

// Get returns the metadata of token, reading it on first use.
func (c *MetaCache) Get(ctx context.Context, token common.Address) (Meta, error) {
	if meta, ok := c.get(token); ok {
		return meta, nil
	}
	meta, err := FetchMeta(ctx, c.caller, token, c.logger)
	if err != nil {
		return Meta{}, err
	}
	c.mu.Lock()
	c.data[token] = meta
	c.mu.Unlock()
	return meta, nil
}
