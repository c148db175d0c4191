package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"forwardlock/internal/model"
)

// JsonlStorage appends trade entries to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutTradeBatch appends a batch of entries as JSON lines.
func (s *JsonlStorage) PutTradeBatch(_ context.Context, entries []model.TradeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal trade entry: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write trade entry: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// FindByTxHash scans the journal for the last entry with txHash.
func (s *JsonlStorage) FindByTxHash(_ context.Context, txHash string) (model.TradeEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.TradeEntry{}, false, nil
	}
	if err != nil {
		return model.TradeEntry{}, false, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var (
		found model.TradeEntry
		ok    bool
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.TradeEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return model.TradeEntry{}, false, fmt.Errorf("decode journal line: %w", err)
		}
		if entry.TxHash != "" && strings.EqualFold(entry.TxHash, txHash) {
			found, ok = entry, true
		}
	}
	if err := scanner.Err(); err != nil {
		return model.TradeEntry{}, false, fmt.Errorf("read journal: %w", err)
	}
	return found, ok, nil
}
