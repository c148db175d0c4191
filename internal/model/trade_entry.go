package model

import "github.com/ethereum/go-ethereum/common"

// TradeEntry is the journal representation of a trade attempt. Amounts are
// base-unit decimal strings to keep precision across JSON and SQL.
type TradeEntry struct {
	ID             string `json:"id"`
	Kind           string `json:"kind,omitempty"`
	PoolName       string `json:"pool_name"`
	PoolAddress    string `json:"pool_address"`
	Recipient      string `json:"recipient"`
	InputAmount    string `json:"input_amount"`
	ExpectedOutput string `json:"expected_output"`
	MinimumOutput  string `json:"minimum_output"`
	MaximumInput   string `json:"maximum_input,omitempty"`
	ToleranceBps   uint32 `json:"tolerance_bps"`
	TxHash         string `json:"tx_hash,omitempty"`
	Status         string `json:"status"`
	BlockNumber    uint64 `json:"block_number,omitempty"`
	RealizedOutput string `json:"realized_output,omitempty"`
	ErrorDetail    string `json:"error_detail,omitempty"`
	RecordedAt     string `json:"recorded_at"`
}

// NewTradeEntry flattens an intent and its current record.
func NewTradeEntry(intent TradeIntent, record TransactionRecord, recordedAt string) TradeEntry {
	entry := TradeEntry{
		ID:             intent.ID,
		Kind:           intent.Kind.String(),
		PoolName:       intent.Pool.Name,
		PoolAddress:    intent.Pool.Address.Hex(),
		Recipient:      intent.Recipient.Hex(),
		InputAmount:    intent.InputAmount.String(),
		ExpectedOutput: intent.ExpectedOutputAmount.String(),
		MinimumOutput:  intent.MinimumAcceptableOutput.String(),
		ToleranceBps:   intent.ToleranceBps,
		Status:         record.Status.String(),
		BlockNumber:    record.BlockNumber,
		ErrorDetail:    record.ErrorDetail,
		RecordedAt:     recordedAt,
	}
	if record.Hash != (common.Hash{}) {
		entry.TxHash = record.Hash.Hex()
	}
	if intent.Kind == BuyBaseTrade {
		entry.MaximumInput = intent.MaximumAcceptableInput.String()
	}
	if record.RealizedOutput != nil {
		entry.RealizedOutput = record.RealizedOutput.String()
	}
	return entry
}
