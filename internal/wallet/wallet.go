// Package wallet holds the account capability the workflow is started with.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Session is the connection state of the user. The workflow only reads it.
type Session interface {
	Address() common.Address
	IsConnected() bool
	ChainID() int64
}

// Wallet is a connected session backed by a private key.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
}

// FromHex loads a wallet from a hex encoded private key, with or without 0x.
func FromHex(hexKey string, chainID int64) (*Wallet, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if hexKey == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

func (w *Wallet) Address() common.Address { return w.address }
func (w *Wallet) IsConnected() bool       { return w != nil && w.key != nil }
func (w *Wallet) ChainID() int64          { return w.chainID }

// SignTx signs tx for chainID with the latest signer.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

// WatchOnly is a disconnected session that still knows an address, used for
// read-only commands.
type WatchOnly struct {
	address common.Address
	chainID int64
}

// NewWatchOnly returns a session for address that cannot sign.
func NewWatchOnly(address common.Address, chainID int64) WatchOnly {
	return WatchOnly{address: address, chainID: chainID}
}

func (w WatchOnly) Address() common.Address { return w.address }
func (w WatchOnly) IsConnected() bool       { return false }
func (w WatchOnly) ChainID() int64          { return w.chainID }
