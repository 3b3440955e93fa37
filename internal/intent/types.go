package intent

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Status mirrors the on-chain intent status enum.
type Status uint8

const (
	StatusOpen Status = iota
	StatusFilled
	StatusCancelled
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Type mirrors the on-chain intent type enum.
type Type uint8

const (
	TypeSwapExactInMaxSlippage Type = iota
)

// MaxSlippageBps is the largest representable slippage bound (100%).
const MaxSlippageBps = 10_000

// Constraints bounds the outcomes an owner will accept for an intent.
type Constraints struct {
	AmountInMax  *big.Int
	AmountOutMin *big.Int
	Deadline     *big.Int // unix seconds
	SlippageBps  uint16
}

// Intent is an agent's signed, constrained instruction. The field set and
// ordering correspond to the on-chain struct used for typed-data hashing.
type Intent struct {
	Owner       common.Address
	IntentType  Type
	Constraints Constraints
	InputToken  common.Address
	OutputToken common.Address
	Nonce       *big.Int
}

// Fill is the solver's proposed settlement of an intent.
type Fill struct {
	AmountIn      *big.Int
	AmountOut     *big.Int
	Solver        common.Address
	ExecutionData []byte
}
