package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/intentlabs/agentbook/internal/intent"
	"github.com/intentlabs/agentbook/internal/rpc"
)

const intentBookABI = `[
	{"type":"function","name":"getIntent","stateMutability":"view",
	 "inputs":[{"name":"intentId","type":"uint256"}],
	 "outputs":[{"name":"intent","type":"tuple","components":[
		{"name":"owner","type":"address"},
		{"name":"intentType","type":"uint8"},
		{"name":"constraints","type":"tuple","components":[
			{"name":"amountInMax","type":"uint256"},
			{"name":"amountOutMin","type":"uint256"},
			{"name":"deadline","type":"uint256"},
			{"name":"slippageBps","type":"uint16"}]},
		{"name":"inputToken","type":"address"},
		{"name":"outputToken","type":"address"},
		{"name":"nonce","type":"uint256"}]}]},
	{"type":"function","name":"getIntentStatus","stateMutability":"view",
	 "inputs":[{"name":"intentId","type":"uint256"}],
	 "outputs":[{"name":"status","type":"uint8"}]},
	{"type":"function","name":"fillIntent","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"intentId","type":"uint256"},
		{"name":"fill","type":"tuple","components":[
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOut","type":"uint256"},
			{"name":"solver","type":"address"},
			{"name":"executionData","type":"bytes"}]}],
	 "outputs":[]}
]`

var bookABI = mustParseABI(intentBookABI)

// Wire layouts for abi tuple conversion. Field order and names must match
// the tuple components above.
type rawConstraints struct {
	AmountInMax  *big.Int
	AmountOutMin *big.Int
	Deadline     *big.Int
	SlippageBps  uint16
}

type rawIntent struct {
	Owner       common.Address
	IntentType  uint8
	Constraints rawConstraints
	InputToken  common.Address
	OutputToken common.Address
	Nonce       *big.Int
}

type rawFill struct {
	AmountIn      *big.Int
	AmountOut     *big.Int
	Solver        common.Address
	ExecutionData []byte
}

// IntentBook reads intents from, and settles them against, the on-chain
// intent book.
type IntentBook struct {
	addr   common.Address
	client rpc.ChainClient
}

func NewIntentBook(addr common.Address, client rpc.ChainClient) *IntentBook {
	return &IntentBook{addr: addr, client: client}
}

// Address returns the intent book contract address.
func (b *IntentBook) Address() common.Address {
	return b.addr
}

// GetIntent reads the full stored intent for the id.
func (b *IntentBook) GetIntent(ctx context.Context, intentID *big.Int) (intent.Intent, error) {
	data, err := bookABI.Pack("getIntent", intentID)
	if err != nil {
		return intent.Intent{}, fmt.Errorf("failed to pack getIntent(%s): %w", intentID, err)
	}

	ret, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &b.addr, Data: data})
	if err != nil {
		return intent.Intent{}, fmt.Errorf("getIntent(%s) call failed: %w", intentID, err)
	}

	out, err := bookABI.Unpack("getIntent", ret)
	if err != nil {
		return intent.Intent{}, fmt.Errorf("failed to unpack getIntent(%s): %w", intentID, err)
	}

	raw := *abi.ConvertType(out[0], new(rawIntent)).(*rawIntent)
	return intent.Intent{
		Owner:      raw.Owner,
		IntentType: intent.Type(raw.IntentType),
		Constraints: intent.Constraints{
			AmountInMax:  raw.Constraints.AmountInMax,
			AmountOutMin: raw.Constraints.AmountOutMin,
			Deadline:     raw.Constraints.Deadline,
			SlippageBps:  raw.Constraints.SlippageBps,
		},
		InputToken:  raw.InputToken,
		OutputToken: raw.OutputToken,
		Nonce:       raw.Nonce,
	}, nil
}

// GetIntentStatus reads the stored status enum for the id. The chain never
// reports EXPIRED; readers derive it from the deadline.
func (b *IntentBook) GetIntentStatus(ctx context.Context, intentID *big.Int) (intent.Status, error) {
	data, err := bookABI.Pack("getIntentStatus", intentID)
	if err != nil {
		return 0, fmt.Errorf("failed to pack getIntentStatus(%s): %w", intentID, err)
	}

	ret, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &b.addr, Data: data})
	if err != nil {
		return 0, fmt.Errorf("getIntentStatus(%s) call failed: %w", intentID, err)
	}

	out, err := bookABI.Unpack("getIntentStatus", ret)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack getIntentStatus(%s): %w", intentID, err)
	}

	status := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	return intent.Status(status), nil
}

// PackFillIntent encodes the fillIntent calldata for a settlement.
func (b *IntentBook) PackFillIntent(intentID *big.Int, fill intent.Fill) ([]byte, error) {
	execData := fill.ExecutionData
	if execData == nil {
		execData = []byte{}
	}

	data, err := bookABI.Pack("fillIntent", intentID, rawFill{
		AmountIn:      fill.AmountIn,
		AmountOut:     fill.AmountOut,
		Solver:        fill.Solver,
		ExecutionData: execData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack fillIntent(%s): %w", intentID, err)
	}

	return data, nil
}
