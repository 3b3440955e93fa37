package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/intentlabs/agentbook/internal/config"
	"github.com/intentlabs/agentbook/internal/logger"
)

// ChainClient is the ledger surface the engines run against. Both the
// ingestion loop and the solver consume this interface rather than a
// concrete client so tests can substitute an in-memory chain.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ ChainClient = (*Client)(nil)

// receiptPollInterval is how often WaitMined re-checks for a receipt.
const receiptPollInterval = time.Second

// Client wraps the Ethereum RPC client with retrying convenience methods.
type Client struct {
	eth   *ethclient.Client
	retry *config.RetryConfig
	log   *logger.Logger
}

// NewClient dials the configured endpoint and returns a retrying client.
func NewClient(ctx context.Context, cfg *config.ChainConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := ethrpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	return &Client{
		eth:   ethclient.NewClient(rpcClient),
		retry: cfg.Retry,
		log:   log,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// do runs one RPC method with retry and records request metrics.
func (c *Client) do(ctx context.Context, method string, fn func() error) error {
	start := time.Now()
	RPCMethodInc(method)

	err := retryWithBackoff(ctx, c.retry, method, fn)

	RPCMethodDuration(method, time.Since(start))
	if err != nil {
		errType := "permanent"
		if retryableError(err) {
			errType = "retryable"
		}
		RPCMethodError(method, errType)
	}

	return err
}

// ChainID returns the chain id reported by the endpoint.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.do(ctx, "eth_chainId", func() error {
		var innerErr error
		id, innerErr = c.eth.ChainID(ctx)
		return innerErr
	})
	return id, err
}

// BlockNumber returns the current head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.do(ctx, "eth_blockNumber", func() error {
		var innerErr error
		head, innerErr = c.eth.BlockNumber(ctx)
		return innerErr
	})
	return head, err
}

// FilterLogs retrieves logs matching the query. When the provider rejects
// the query as returning too many results, the block range is split and
// fetched in pieces, preferring the range the provider suggests.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.do(ctx, "eth_getLogs", func() error {
		var innerErr error
		logs, innerErr = c.eth.FilterLogs(ctx, query)
		return innerErr
	})
	if err == nil {
		return logs, nil
	}

	tooMany, msg := IsTooManyResultsError(err)
	if !tooMany || query.FromBlock == nil || query.ToBlock == nil {
		return nil, err
	}

	from := query.FromBlock.Uint64()
	to := query.ToBlock.Uint64()
	mid, ok := splitPoint(from, to, msg)
	if !ok {
		return nil, err
	}

	c.log.Warnf("log query [%d, %d] too large, splitting at %d", from, to, mid)

	left := query
	left.ToBlock = new(big.Int).SetUint64(mid)
	head, err := c.FilterLogs(ctx, left)
	if err != nil {
		return nil, err
	}

	right := query
	right.FromBlock = new(big.Int).SetUint64(mid + 1)
	tail, err := c.FilterLogs(ctx, right)
	if err != nil {
		return nil, err
	}

	return append(head, tail...), nil
}

// splitPoint picks the last block of the first sub-range when a log query
// must be split. The provider's suggested range wins when it is sane,
// otherwise the range is halved. Returns false when the range cannot be
// split further.
func splitPoint(from, to uint64, errMsg string) (uint64, bool) {
	if from >= to {
		return 0, false
	}
	if _, suggestedTo, ok := ParseSuggestedBlockRange(errMsg); ok &&
		suggestedTo >= from && suggestedTo < to {
		return suggestedTo, true
	}
	return from + (to-from)/2, true
}

// CallContract executes a read-only call against the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func() error {
		var innerErr error
		out, innerErr = c.eth.CallContract(ctx, msg, nil)
		return innerErr
	})
	return out, err
}

// PendingNonceAt returns the next nonce for the account, pending included.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.do(ctx, "eth_getTransactionCount", func() error {
		var innerErr error
		nonce, innerErr = c.eth.PendingNonceAt(ctx, account)
		return innerErr
	})
	return nonce, err
}

// SuggestGasPrice returns the endpoint's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.do(ctx, "eth_gasPrice", func() error {
		var innerErr error
		price, innerErr = c.eth.SuggestGasPrice(ctx)
		return innerErr
	})
	return price, err
}

// EstimateGas estimates the gas needed to execute the message.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.do(ctx, "eth_estimateGas", func() error {
		var innerErr error
		gas, innerErr = c.eth.EstimateGas(ctx, msg)
		return innerErr
	})
	return gas, err
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.do(ctx, "eth_sendRawTransaction", func() error {
		return c.eth.SendTransaction(ctx, tx)
	})
}

// WaitMined polls for the transaction receipt until it lands or the
// context is cancelled.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.log.Debugf("receipt lookup for %s: %v", txHash, err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash, ctx.Err())
		}
	}
}
