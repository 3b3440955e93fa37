package solver

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/intentlabs/agentbook/internal/contracts"
	"github.com/intentlabs/agentbook/internal/intent"
	"github.com/intentlabs/agentbook/internal/logger"
	"github.com/intentlabs/agentbook/internal/metrics"
	"github.com/intentlabs/agentbook/internal/rpc"
)

// Skip reasons reported on not-attempted outcomes. Fixed strings so the
// metric labels stay bounded.
const (
	ReasonStatusCheckFailed = "status check failed"
	ReasonNotOpen           = "intent not open"
	ReasonReadFailed        = "intent read failed"
	ReasonSimulationFailed  = "simulation failed"
	ReasonSubmitFailed      = "submit failed"
	ReasonReceiptFailed     = "receipt wait failed"
	ReasonTxReverted        = "fill transaction reverted"
	ReasonInternal          = "internal error"
)

// Outcome is the result of one settlement attempt. Filled means the fill
// transaction landed successfully; everything else is not-attempted with
// a reason. There is no error branch: failures never escape the executor.
type Outcome struct {
	Filled bool
	Reason string
	TxHash common.Hash
}

func notAttempted(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Executor settles open intents at their constraint boundary: it offers
// exactly amountInMax in and amountOutMin out.
type Executor struct {
	client  rpc.ChainClient
	book    *contracts.IntentBook
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	log     *logger.Logger
}

func NewExecutor(client rpc.ChainClient, book *contracts.IntentBook, key *ecdsa.PrivateKey, chainID *big.Int, log *logger.Logger) *Executor {
	return &Executor{
		client:  client,
		book:    book,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		log:     log,
	}
}

// From returns the solver's signing address.
func (e *Executor) From() common.Address {
	return e.from
}

// ProcessIntent runs the settlement state machine for one intent id.
// Nothing it does can take the engine down: every failure, including a
// panic in the attempt, becomes a not-attempted outcome.
func (e *Executor) ProcessIntent(ctx context.Context, intentID *big.Int) (outcome Outcome) {
	metrics.SolverAttempts.Inc()

	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("settlement of intent %s panicked: %v", intentID, r)
			outcome = notAttempted(ReasonInternal)
		}
		if outcome.Filled {
			metrics.SolverFills.Inc()
		} else {
			metrics.SolverSkipInc(outcome.Reason)
		}
	}()

	outcome = e.attempt(ctx, intentID)
	return outcome
}

func (e *Executor) attempt(ctx context.Context, intentID *big.Int) Outcome {
	status, err := e.book.GetIntentStatus(ctx, intentID)
	if err != nil {
		e.log.Warnf("failed to check status of intent %s: %v", intentID, err)
		return notAttempted(ReasonStatusCheckFailed)
	}
	if status != intent.StatusOpen {
		e.log.Debugf("skipping intent %s: status %s", intentID, status)
		return notAttempted(ReasonNotOpen)
	}

	in, err := e.book.GetIntent(ctx, intentID)
	if err != nil {
		e.log.Warnf("failed to read intent %s: %v", intentID, err)
		return notAttempted(ReasonReadFailed)
	}

	if v := intent.ValidateConstraints(in.Constraints, timeNow()); !v.Valid {
		e.log.Debugf("skipping intent %s: %s", intentID, v.Reason)
		return notAttempted(v.Reason)
	}

	fill := intent.Fill{
		AmountIn:  in.Constraints.AmountInMax,
		AmountOut: in.Constraints.AmountOutMin,
		Solver:    e.from,
	}

	data, err := e.book.PackFillIntent(intentID, fill)
	if err != nil {
		e.log.Warnf("failed to encode fill for intent %s: %v", intentID, err)
		return notAttempted(ReasonInternal)
	}

	bookAddr := e.book.Address()
	callMsg := ethereum.CallMsg{From: e.from, To: &bookAddr, Data: data}

	// Dry-run first; a reverting fill never costs gas.
	if _, err := e.client.CallContract(ctx, callMsg); err != nil {
		e.log.Infof("simulation failed for intent %s: %v", intentID, err)
		return notAttempted(ReasonSimulationFailed)
	}

	txHash, err := e.submit(ctx, callMsg)
	if err != nil {
		e.log.Warnf("failed to submit fill for intent %s: %v", intentID, err)
		return notAttempted(ReasonSubmitFailed)
	}

	receipt, err := e.client.WaitMined(ctx, txHash)
	if err != nil {
		e.log.Warnf("failed waiting for fill of intent %s (tx %s): %v", intentID, txHash, err)
		return notAttempted(ReasonReceiptFailed)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		e.log.Warnf("fill of intent %s reverted on chain (tx %s)", intentID, txHash)
		return notAttempted(ReasonTxReverted)
	}

	e.log.Infow("intent filled",
		"intent_id", intentID.String(),
		"tx", txHash.Hex(),
		"block", receipt.BlockNumber,
	)
	return Outcome{Filled: true, TxHash: txHash}
}

// submit signs and broadcasts the fill transaction.
func (e *Executor) submit(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gasLimit, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       msg.To,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     msg.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	return signed.Hash(), nil
}
