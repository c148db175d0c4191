package storage

import (
	"context"
	"path/filepath"
	"testing"

	"forwardlock/internal/model"
)

func TestJsonlStorageAppendAndFind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trades.jsonl")
	s := NewJsonlStorage(path)
	ctx := context.Background()

	hash := "0x00000000000000000000000000000000000000000000000000000000000000ab"
	submitted := model.TradeEntry{ID: "t-1", TxHash: hash, Status: "submitted", InputAmount: "100000"}
	confirmed := submitted
	confirmed.Status = "confirmed"
	confirmed.RealizedOutput = "102700"

	if err := s.PutTradeBatch(ctx, []model.TradeEntry{submitted}); err != nil {
		t.Fatalf("PutTradeBatch: %v", err)
	}
	if err := s.PutTradeBatch(ctx, []model.TradeEntry{{ID: "t-2", Status: "failed"}, confirmed}); err != nil {
		t.Fatalf("PutTradeBatch: %v", err)
	}

	got, ok, err := s.FindByTxHash(ctx, "0x00000000000000000000000000000000000000000000000000000000000000AB")
	if err != nil || !ok {
		t.Fatalf("FindByTxHash: ok=%v err=%v", ok, err)
	}
	if got.Status != "confirmed" || got.RealizedOutput != "102700" {
		t.Fatalf("entry = %+v", got)
	}
}

func TestJsonlStorageMissingFile(t *testing.T) {
	s := NewJsonlStorage(filepath.Join(t.TempDir(), "none.jsonl"))
	_, ok, err := s.FindByTxHash(context.Background(), "0x01")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if err := s.PutTradeBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}
