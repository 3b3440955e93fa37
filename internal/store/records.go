package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/intentlabs/agentbook/internal/intent"
)

// Policy row discriminators. Each policy kind uses a fixed subset of the
// composite key columns; unused columns hold the zero filler so the key
// stays total.
const (
	PolicyTypeSpendLimit        = "spend_limit"
	PolicyTypeTargetAllowlist   = "target_allowlist"
	PolicyTypeFunctionAllowlist = "function_allowlist"

	// zeroSelector fills the selector column for policy kinds that have none.
	zeroSelector = "0x00000000"
)

// AgentRecord mirrors one row of the agents table.
type AgentRecord struct {
	AgentID          string         `meddler:"agent_id"`
	Owner            common.Address `meddler:"owner,address"`
	MetadataURI      string         `meddler:"metadata_uri"`
	Pubkey           string         `meddler:"pubkey"`
	CapabilitiesHash common.Hash    `meddler:"capabilities_hash,hash"`
	Revoked          bool           `meddler:"revoked"`
	BlockNumber      uint64         `meddler:"block_number"`
	UpdatedAt        int64          `meddler:"updated_at"`
}

// IntentRecord mirrors one row of the intents table. Amount-like columns
// are base-10 strings so values above 2^53 survive the round trip.
type IntentRecord struct {
	IntentID     string         `meddler:"intent_id"`
	Owner        common.Address `meddler:"owner,address"`
	IntentType   uint8          `meddler:"intent_type"`
	InputToken   common.Address `meddler:"input_token,address"`
	OutputToken  common.Address `meddler:"output_token,address"`
	AmountInMax  string         `meddler:"amount_in_max"`
	AmountOutMin string         `meddler:"amount_out_min"`
	Deadline     string         `meddler:"deadline"`
	SlippageBps  uint16         `meddler:"slippage_bps"`
	Nonce        string         `meddler:"nonce"`
	Status       string         `meddler:"status"`
	BlockNumber  uint64         `meddler:"block_number"`
	UpdatedAt    int64          `meddler:"updated_at"`
}

// EffectiveStatus derives the status readers should report. EXPIRED is
// never stored: an OPEN intent whose deadline has passed reads as EXPIRED,
// everything else reads as stored.
func (r *IntentRecord) EffectiveStatus(now time.Time) string {
	if r.Status != intent.StatusOpen.String() {
		return r.Status
	}
	deadline, ok := new(big.Int).SetString(r.Deadline, 10)
	if !ok || deadline.Cmp(big.NewInt(now.Unix())) > 0 {
		return r.Status
	}
	return intent.StatusExpired.String()
}

// NewIntentRecord flattens a chain intent into its stored form.
func NewIntentRecord(intentID *big.Int, in intent.Intent, status intent.Status, blockNumber uint64, now time.Time) *IntentRecord {
	return &IntentRecord{
		IntentID:     intentID.String(),
		Owner:        in.Owner,
		IntentType:   uint8(in.IntentType),
		InputToken:   in.InputToken,
		OutputToken:  in.OutputToken,
		AmountInMax:  bigString(in.Constraints.AmountInMax),
		AmountOutMin: bigString(in.Constraints.AmountOutMin),
		Deadline:     bigString(in.Constraints.Deadline),
		SlippageBps:  in.Constraints.SlippageBps,
		Nonce:        bigString(in.Nonce),
		Status:       status.String(),
		BlockNumber:  blockNumber,
		UpdatedAt:    now.Unix(),
	}
}

// FillRecord mirrors one row of the fills table.
type FillRecord struct {
	ID          int64          `meddler:"id,pk"`
	IntentID    string         `meddler:"intent_id"`
	Solver      common.Address `meddler:"solver,address"`
	AmountIn    string         `meddler:"amount_in"`
	AmountOut   string         `meddler:"amount_out"`
	TxHash      common.Hash    `meddler:"tx_hash,hash"`
	BlockNumber uint64         `meddler:"block_number"`
	CreatedAt   int64          `meddler:"created_at"`
}

// PolicyRecord mirrors one row of the policies table.
type PolicyRecord struct {
	Account     common.Address `meddler:"account,address"`
	PolicyType  string         `meddler:"policy_type"`
	Token       common.Address `meddler:"token,address"`
	Target      common.Address `meddler:"target,address"`
	Selector    string         `meddler:"selector"`
	Value       string         `meddler:"value"`
	BlockNumber uint64         `meddler:"block_number"`
	UpdatedAt   int64          `meddler:"updated_at"`
}

// SpendLimitPolicy keys on (account, token); target and selector are filler.
func SpendLimitPolicy(account, token common.Address, maxPerDay *big.Int, blockNumber uint64, now time.Time) *PolicyRecord {
	return &PolicyRecord{
		Account:     account,
		PolicyType:  PolicyTypeSpendLimit,
		Token:       token,
		Selector:    zeroSelector,
		Value:       bigString(maxPerDay),
		BlockNumber: blockNumber,
		UpdatedAt:   now.Unix(),
	}
}

// TargetAllowlistPolicy keys on (account, target); token and selector are
// filler. Allowed=false is stored as a value, never as a deletion.
func TargetAllowlistPolicy(account, target common.Address, allowed bool, blockNumber uint64, now time.Time) *PolicyRecord {
	return &PolicyRecord{
		Account:     account,
		PolicyType:  PolicyTypeTargetAllowlist,
		Target:      target,
		Selector:    zeroSelector,
		Value:       boolValue(allowed),
		BlockNumber: blockNumber,
		UpdatedAt:   now.Unix(),
	}
}

// FunctionAllowlistPolicy keys on (account, target, selector); token is
// filler.
func FunctionAllowlistPolicy(account, target common.Address, selector [4]byte, allowed bool, blockNumber uint64, now time.Time) *PolicyRecord {
	return &PolicyRecord{
		Account:     account,
		PolicyType:  PolicyTypeFunctionAllowlist,
		Target:      target,
		Selector:    fmt.Sprintf("0x%x", selector),
		Value:       boolValue(allowed),
		BlockNumber: blockNumber,
		UpdatedAt:   now.Unix(),
	}
}

// AttestationRecord mirrors one row of the attestations table.
type AttestationRecord struct {
	AttestationID string         `meddler:"attestation_id"`
	Attester      common.Address `meddler:"attester,address"`
	SchemaHash    common.Hash    `meddler:"schema_hash,hash"`
	Subject       common.Hash    `meddler:"subject,hash"`
	Revoked       bool           `meddler:"revoked"`
	BlockNumber   uint64         `meddler:"block_number"`
	UpdatedAt     int64          `meddler:"updated_at"`
}

// TxEvent is one decoded-event summary in a transaction digest.
type TxEvent struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// TxReceiptRecord mirrors one row of the tx_receipts table. Events holds a
// JSON array of decoded-event summaries, appended best-effort.
type TxReceiptRecord struct {
	TxHash      common.Hash    `meddler:"tx_hash,hash"`
	BlockNumber uint64         `meddler:"block_number"`
	ToAddress   common.Address `meddler:"to_address,address"`
	Events      string         `meddler:"events"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
