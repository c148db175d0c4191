package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Cursor records how far the trades of one account have been scanned.
type Cursor struct {
	Account          string `json:"account"`
	ChainID          int64  `json:"chain_id"`
	LastScannedBlock uint64 `json:"last_scanned_block"`
	UpdatedAt        string `json:"updated_at"`
}

// CursorStore persists cursors as one JSON file per account and chain under
// dir. An empty dir disables persistence.
type CursorStore struct {
	dir string
}

func NewCursorStore(dir string) *CursorStore {
	return &CursorStore{dir: dir}
}

func (c *CursorStore) path(chainID int64, account common.Address) string {
	name := fmt.Sprintf("%d-%s.json", chainID, strings.ToLower(account.Hex()))
	return filepath.Join(c.dir, name)
}

// Load returns the stored cursor. The bool is false when none exists.
func (c *CursorStore) Load(chainID int64, account common.Address) (Cursor, bool, error) {
	if c == nil || c.dir == "" {
		return Cursor{}, false, nil
	}

	data, err := os.ReadFile(c.path(chainID, account))
	if err != nil {
		if os.IsNotExist(err) {
			return Cursor{}, false, nil
		}
		return Cursor{}, false, fmt.Errorf("read cursor: %w", err)
	}

	var cur Cursor
	if err := json.Unmarshal(data, &cur); err != nil {
		return Cursor{}, false, fmt.Errorf("parse cursor: %w", err)
	}
	if !strings.EqualFold(cur.Account, account.Hex()) || cur.ChainID != chainID {
		return Cursor{}, false, fmt.Errorf("cursor %s belongs to %s on chain %d", c.path(chainID, account), cur.Account, cur.ChainID)
	}
	return cur, true, nil
}

// Save writes the cursor atomically.
func (c *CursorStore) Save(chainID int64, account common.Address, lastScanned uint64) error {
	if c == nil || c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cursor dir: %w", err)
	}

	data, err := json.Marshal(Cursor{
		Account:          account.Hex(),
		ChainID:          chainID,
		LastScannedBlock: lastScanned,
		UpdatedAt:        time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	path := c.path(chainID, account)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write cursor tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename cursor: %w", err)
	}
	return nil
}
