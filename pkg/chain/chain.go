// Package chain reads stablecoin transfers to the treasury from an
// EVM-compatible network.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

var (
	ErrTxNotFound    = errors.New("chain: transaction not found")
	ErrTxPending     = errors.New("chain: transaction not mined yet")
	ErrTxFailed      = errors.New("chain: transaction reverted")
	ErrNoTransfer    = errors.New("chain: no matching transfer log")
	ErrNotConfigured = errors.New("chain: not configured")
	ErrInvalidHash   = errors.New("chain: invalid transaction hash")
)

// TransferTopic is topic-0 of the ERC-20 Transfer(address,address,uint256) event.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Reader is the subset of ethclient.Client used here.
type Reader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, ErrNotConfigured
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}

type Transfer struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

// Payment is a mined, successful transaction carrying a transfer to the treasury.
type Payment struct {
	Hash        common.Hash
	BlockNumber uint64
	BlockTime   time.Time
	Transfer    Transfer
	Amount      decimal.Decimal
}

// DecodeTransfer returns the Transfer encoded in log, if it is one.
func DecodeTransfer(log *types.Log) (Transfer, bool) {
	if log == nil || len(log.Topics) != 3 || log.Topics[0] != TransferTopic {
		return Transfer{}, false
	}
	return Transfer{
		Token: log.Address,
		From:  common.BytesToAddress(log.Topics[1].Bytes()[12:]),
		To:    common.BytesToAddress(log.Topics[2].Bytes()[12:]),
		Value: new(big.Int).SetBytes(log.Data),
	}, true
}

// FindTransfer returns the first transfer of token to recipient in receipt.
func FindTransfer(receipt *types.Receipt, token, recipient common.Address) (Transfer, bool) {
	if receipt == nil {
		return Transfer{}, false
	}
	for _, log := range receipt.Logs {
		t, ok := DecodeTransfer(log)
		if !ok {
			continue
		}
		if t.Token == token && t.To == recipient {
			return t, true
		}
	}
	return Transfer{}, false
}

// TokenAmount scales a raw token value by the token's decimals.
func TokenAmount(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

func ParseHash(raw string) (common.Hash, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") || len(raw) != 66 {
		return common.Hash{}, ErrInvalidHash
	}
	return common.HexToHash(raw), nil
}

// Inspector resolves a transaction hash into a treasury Payment.
type Inspector struct {
	reader    Reader
	token     common.Address
	treasury  common.Address
	decimals  int32
	timeout   time.Duration
	available bool
}

func NewInspector(reader Reader, tokenAddr, treasuryAddr string, decimals int32, timeout time.Duration) *Inspector {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Inspector{
		reader:    reader,
		token:     common.HexToAddress(tokenAddr),
		treasury:  common.HexToAddress(treasuryAddr),
		decimals:  decimals,
		timeout:   timeout,
		available: reader != nil && common.IsHexAddress(tokenAddr) && common.IsHexAddress(treasuryAddr),
	}
}

func (i *Inspector) Configured() bool {
	return i != nil && i.available
}

// Inspect fetches the transaction, its receipt and block header. Errors other
// than the package sentinels are RPC failures.
func (i *Inspector) Inspect(ctx context.Context, rawHash string) (*Payment, error) {
	if !i.Configured() {
		return nil, ErrNotConfigured
	}
	hash, err := ParseHash(rawHash)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	_, isPending, err := i.reader.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if isPending {
		return nil, ErrTxPending
	}

	receipt, err := i.reader.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxPending
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	if receipt == nil {
		return nil, ErrTxPending
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, ErrTxFailed
	}

	transfer, ok := FindTransfer(receipt, i.token, i.treasury)
	if !ok {
		return nil, ErrNoTransfer
	}

	header, err := i.reader.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("get block header: %w", err)
	}

	return &Payment{
		Hash:        hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		BlockTime:   time.Unix(int64(header.Time), 0).UTC(),
		Transfer:    transfer,
		Amount:      TokenAmount(transfer.Value, i.decimals),
	}, nil
}
