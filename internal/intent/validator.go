package intent

import (
	"math/big"
	"time"
)

// Validation is the outcome of an off-chain constraint check. Invalid is
// not an error: the caller skips the intent and records the reason.
type Validation struct {
	Valid  bool
	Reason string
}

func invalid(reason string) Validation {
	return Validation{Reason: reason}
}

// ValidateConstraints checks an intent's constraint bundle against
// policy-free sanity bounds at the given time. It is pure and
// side-effect-free.
//
// The deadline check is advisory: the ledger is the authority on expiry,
// and readers of stored intents must derive effective expiry themselves.
func ValidateConstraints(c Constraints, now time.Time) Validation {
	nowSec := big.NewInt(now.Unix())

	if c.Deadline == nil || c.Deadline.Cmp(nowSec) <= 0 {
		return invalid("intent deadline has passed")
	}
	if c.SlippageBps > MaxSlippageBps {
		return invalid("slippage exceeds 100%")
	}
	if c.AmountInMax == nil || c.AmountInMax.Sign() <= 0 {
		return invalid("amountInMax must be > 0")
	}
	if c.AmountOutMin == nil || c.AmountOutMin.Sign() <= 0 {
		return invalid("amountOutMin must be > 0")
	}

	return Validation{Valid: true}
}
