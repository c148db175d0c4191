// Package pool reads YieldSpace pools: reserves, previews, metadata and trade
// events, plus the static registry of configured pools.
package pool

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"forwardlock/internal/model"
)

// Registry is the static set of configured pools.
type Registry struct {
	pools  []model.Pool
	byName map[string]int
}

// NewRegistry validates pools and indexes them by name. Names (compared
// case-insensitively) and addresses must be unique.
func NewRegistry(pools []model.Pool) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(pools))}
	names := make(map[string]struct{}, len(pools))
	addrs := make(map[common.Address]string, len(pools))
	for _, p := range pools {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return nil, fmt.Errorf("pool with address %s has no name", p.Address.Hex())
		}
		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("duplicate pool name %q", p.Name)
		}
		names[name] = struct{}{}
		if p.Address == (common.Address{}) {
			return nil, fmt.Errorf("pool %s: missing address", p.Name)
		}
		if other, dup := addrs[p.Address]; dup {
			return nil, fmt.Errorf("pool %s: address %s already used by %s", p.Name, p.Address.Hex(), other)
		}
		addrs[p.Address] = p.Name
		if p.BaseToken == (common.Address{}) {
			return nil, fmt.Errorf("pool %s: missing base token", p.Name)
		}
		if p.Maturity == 0 {
			return nil, fmt.Errorf("pool %s: missing maturity", p.Name)
		}
		if p.FeeBps >= 10000 {
			return nil, fmt.Errorf("pool %s: fee %d bps out of range", p.Name, p.FeeBps)
		}
		r.pools = append(r.pools, p)
	}
	sort.SliceStable(r.pools, func(i, j int) bool {
		return r.pools[i].Maturity < r.pools[j].Maturity
	})
	for i, p := range r.pools {
		r.byName[strings.ToLower(strings.TrimSpace(p.Name))] = i
	}
	return r, nil
}

// All returns the pools ordered by maturity.
func (r *Registry) All() []model.Pool {
	return append([]model.Pool(nil), r.pools...)
}

// Resolve looks a pool up by name, case-insensitively.
func (r *Registry) Resolve(name string) (model.Pool, error) {
	i, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return model.Pool{}, model.InvalidInputf("unknown pool %q", name)
	}
	return r.pools[i], nil
}

// ForDate picks the pool with the latest maturity not after until that has
// not yet matured.
func (r *Registry) ForDate(until, now time.Time) (model.Pool, error) {
	var (
		best  model.Pool
		found bool
	)
	for _, p := range r.pools {
		if p.Matured(now) || p.MaturityTime().After(until) {
			continue
		}
		best, found = p, true
	}
	if !found {
		return model.Pool{}, model.InvalidInputf("no open pool matures by %s", until.UTC().Format(dateLayout))
	}
	return best, nil
}

// Select resolves target as a pool name first, then as a tenor or date.
// Matured pools are rejected.
func (r *Registry) Select(target string, now time.Time) (model.Pool, error) {
	if p, err := r.Resolve(target); err == nil {
		if p.Matured(now) {
			return model.Pool{}, model.InvalidInputf("pool %s matured on %s", p.Name, p.MaturityTime().Format(dateLayout))
		}
		return p, nil
	}
	until, err := ParseTenor(target, now)
	if err != nil {
		return model.Pool{}, err
	}
	return r.ForDate(until, now)
}
