// Package chaintest provides an in-memory chain.Reader for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"
	"time"

	"course-subscription-be/pkg/chain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Reader struct {
	mu       sync.Mutex
	txs      map[common.Hash]bool // hash -> pending
	receipts map[common.Hash]*types.Receipt
	headers  map[uint64]*types.Header
	Err      error
}

var _ chain.Reader = (*Reader)(nil)

func NewReader() *Reader {
	return &Reader{
		txs:      make(map[common.Hash]bool),
		receipts: make(map[common.Hash]*types.Receipt),
		headers:  make(map[uint64]*types.Header),
	}
}

// AddPending registers a known transaction without a receipt.
func (r *Reader) AddPending(hash common.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[hash] = true
}

// AddMined registers a mined transaction with the given receipt status and logs.
func (r *Reader) AddMined(hash common.Hash, status uint64, block uint64, blockTime time.Time, logs ...*types.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[hash] = false
	r.receipts[hash] = &types.Receipt{
		Status:      status,
		BlockNumber: new(big.Int).SetUint64(block),
		Logs:        logs,
		TxHash:      hash,
	}
	r.headers[block] = &types.Header{
		Number: new(big.Int).SetUint64(block),
		Time:   uint64(blockTime.Unix()),
	}
}

// TransferLog builds an ERC-20 Transfer log.
func TransferLog(token, from, to common.Address, value *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			chain.TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

func (r *Reader) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, false, r.Err
	}
	pending, ok := r.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)})
	return tx, pending, nil
}

func (r *Reader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	receipt, ok := r.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (r *Reader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	header, ok := r.headers[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return header, nil
}
