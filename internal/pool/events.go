package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"forwardlock/internal/chain"
	"forwardlock/internal/model"
)

// TradeEvent is a decoded Trade log with signed amounts.
type TradeEvent struct {
	model.TradeEventData
	BaseDelta    *big.Int
	FYTokenDelta *big.Int
}

// DecodeTrade decodes a pool Trade log.
func DecodeTrade(lg types.Log) (TradeEvent, error) {
	poolABI, err := ABI()
	if err != nil {
		return TradeEvent{}, fmt.Errorf("parse pool abi: %w", err)
	}
	event := poolABI.Events["Trade"]
	if len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
		return TradeEvent{}, fmt.Errorf("not a Trade log")
	}

	indexedArgs := indexedArguments(event.Inputs)
	if len(lg.Topics) != len(indexedArgs)+1 {
		return TradeEvent{}, fmt.Errorf("expected %d topics, got %d", len(indexedArgs)+1, len(lg.Topics))
	}
	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArgs, lg.Topics[1:]); err != nil {
		return TradeEvent{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return TradeEvent{}, fmt.Errorf("unpack Trade: %w", err)
	}
	if len(values) != 3 {
		return TradeEvent{}, fmt.Errorf("unexpected trade values: %d", len(values))
	}
	maturity, err := chain.AsBigInt(values[0])
	if err != nil {
		return TradeEvent{}, err
	}
	base, err := chain.AsBigInt(values[1])
	if err != nil {
		return TradeEvent{}, err
	}
	fyTokens, err := chain.AsBigInt(values[2])
	if err != nil {
		return TradeEvent{}, err
	}

	return TradeEvent{
		TradeEventData: model.TradeEventData{
			Maturity: uint32(maturity.Uint64()),
			From:     indexed.From.Hex(),
			To:       indexed.To.Hex(),
			Base:     base.String(),
			FYTokens: fyTokens.String(),
		},
		BaseDelta:    base,
		FYTokenDelta: fyTokens,
	}, nil
}

// FindTrade returns the first Trade emitted by poolAddr to recipient.
func FindTrade(logs []types.Log, poolAddr, recipient common.Address) (TradeEvent, bool) {
	for _, lg := range logs {
		if lg.Address != poolAddr {
			continue
		}
		ev, err := DecodeTrade(lg)
		if err != nil {
			continue
		}
		if common.HexToAddress(ev.To) != recipient {
			continue
		}
		return ev, true
	}
	return TradeEvent{}, false
}

// FYTokenOut is the fyToken amount a sellBase delivered.
func (e TradeEvent) FYTokenOut() *big.Int {
	return new(big.Int).Abs(e.FYTokenDelta)
}

// BaseOut is the base amount a buyBase delivered.
func (e TradeEvent) BaseOut() *big.Int {
	return new(big.Int).Abs(e.BaseDelta)
}

// FYTokenIn is the fyToken amount a buyBase charged.
func (e TradeEvent) FYTokenIn() *big.Int {
	return new(big.Int).Abs(e.FYTokenDelta)
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
