package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is the closed set of ledger log variants. Every decoded event
// carries the raw log so consumers can attribute it to a block and
// transaction. New variants are added here and in the decoder together;
// the unexported marker keeps the set closed.
type Event interface {
	// Name is the bare event name as emitted by the contract.
	Name() string
	// Log returns the raw log the event was decoded from.
	Log() types.Log
	// Args returns the decoded payload as JSON-friendly values, keyed by
	// the contract's parameter names.
	Args() map[string]any

	isEvent()
}

// AgentRegistered announces a new agent identity in the registry.
type AgentRegistered struct {
	Raw         types.Log
	AgentID     *big.Int
	Owner       common.Address
	MetadataURI string
}

// AgentUpdated replaces an agent's metadata pointer and capabilities hash.
type AgentUpdated struct {
	Raw              types.Log
	AgentID          *big.Int
	MetadataURI      string
	CapabilitiesHash common.Hash
}

// AgentRevoked marks an agent identity as revoked. Revocation is a value
// change, never a deletion.
type AgentRevoked struct {
	Raw     types.Log
	AgentID *big.Int
}

// IntentSubmitted announces a newly posted intent.
type IntentSubmitted struct {
	Raw      types.Log
	IntentID *big.Int
	Owner    common.Address
	Nonce    *big.Int
}

// IntentFilled records a settlement of an intent by a solver.
type IntentFilled struct {
	Raw       types.Log
	IntentID  *big.Int
	Solver    common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
}

// IntentCancelled records an owner's cancellation of an open intent.
type IntentCancelled struct {
	Raw      types.Log
	IntentID *big.Int
}

// SpendLimitSet sets a per-day spend cap for an account and token.
type SpendLimitSet struct {
	Raw       types.Log
	Account   common.Address
	Token     common.Address
	MaxPerDay *big.Int
}

// TargetAllowlistUpdated toggles whether an account may call a target
// contract. Allowed=false is stored, not deleted.
type TargetAllowlistUpdated struct {
	Raw     types.Log
	Account common.Address
	Target  common.Address
	Allowed bool
}

// FunctionAllowlistUpdated toggles a single function selector on a target
// for an account.
type FunctionAllowlistUpdated struct {
	Raw      types.Log
	Account  common.Address
	Target   common.Address
	Selector [4]byte
	Allowed  bool
}

// SpendRecorded reports spend accounting after an execution. Informational:
// it never mutates stored policy rows.
type SpendRecorded struct {
	Raw        types.Log
	Account    common.Address
	Token      common.Address
	Amount     *big.Int
	DailyTotal *big.Int
}

// AttestationSubmitted records a claim about a subject under a schema.
type AttestationSubmitted struct {
	Raw      types.Log
	ID       *big.Int
	Attester common.Address
	Schema   common.Hash
	Subject  common.Hash
}

// AttestationRevoked marks a previously submitted attestation as revoked.
type AttestationRevoked struct {
	Raw types.Log
	ID  *big.Int
}

func (e AgentRegistered) Name() string          { return "AgentRegistered" }
func (e AgentUpdated) Name() string             { return "AgentUpdated" }
func (e AgentRevoked) Name() string             { return "AgentRevoked" }
func (e IntentSubmitted) Name() string          { return "IntentSubmitted" }
func (e IntentFilled) Name() string             { return "IntentFilled" }
func (e IntentCancelled) Name() string          { return "IntentCancelled" }
func (e SpendLimitSet) Name() string            { return "SpendLimitSet" }
func (e TargetAllowlistUpdated) Name() string   { return "TargetAllowlistUpdated" }
func (e FunctionAllowlistUpdated) Name() string { return "FunctionAllowlistUpdated" }
func (e SpendRecorded) Name() string            { return "SpendRecorded" }
func (e AttestationSubmitted) Name() string     { return "AttestationSubmitted" }
func (e AttestationRevoked) Name() string       { return "AttestationRevoked" }

func (e AgentRegistered) Log() types.Log          { return e.Raw }
func (e AgentUpdated) Log() types.Log             { return e.Raw }
func (e AgentRevoked) Log() types.Log             { return e.Raw }
func (e IntentSubmitted) Log() types.Log          { return e.Raw }
func (e IntentFilled) Log() types.Log             { return e.Raw }
func (e IntentCancelled) Log() types.Log          { return e.Raw }
func (e SpendLimitSet) Log() types.Log            { return e.Raw }
func (e TargetAllowlistUpdated) Log() types.Log   { return e.Raw }
func (e FunctionAllowlistUpdated) Log() types.Log { return e.Raw }
func (e SpendRecorded) Log() types.Log            { return e.Raw }
func (e AttestationSubmitted) Log() types.Log     { return e.Raw }
func (e AttestationRevoked) Log() types.Log       { return e.Raw }

func (e AgentRegistered) Args() map[string]any {
	return map[string]any{"agentId": e.AgentID.String(), "owner": e.Owner.Hex(), "metadataURI": e.MetadataURI}
}

func (e AgentUpdated) Args() map[string]any {
	return map[string]any{
		"agentId": e.AgentID.String(), "metadataURI": e.MetadataURI, "capabilitiesHash": e.CapabilitiesHash.Hex(),
	}
}

func (e AgentRevoked) Args() map[string]any {
	return map[string]any{"agentId": e.AgentID.String()}
}

func (e IntentSubmitted) Args() map[string]any {
	return map[string]any{"intentId": e.IntentID.String(), "owner": e.Owner.Hex(), "nonce": e.Nonce.String()}
}

func (e IntentFilled) Args() map[string]any {
	return map[string]any{
		"intentId": e.IntentID.String(), "solver": e.Solver.Hex(),
		"amountIn": e.AmountIn.String(), "amountOut": e.AmountOut.String(),
	}
}

func (e IntentCancelled) Args() map[string]any {
	return map[string]any{"intentId": e.IntentID.String()}
}

func (e SpendLimitSet) Args() map[string]any {
	return map[string]any{"account": e.Account.Hex(), "token": e.Token.Hex(), "maxPerDay": e.MaxPerDay.String()}
}

func (e TargetAllowlistUpdated) Args() map[string]any {
	return map[string]any{"account": e.Account.Hex(), "target": e.Target.Hex(), "allowed": e.Allowed}
}

func (e FunctionAllowlistUpdated) Args() map[string]any {
	return map[string]any{
		"account": e.Account.Hex(), "target": e.Target.Hex(),
		"selector": fmt.Sprintf("0x%x", e.Selector), "allowed": e.Allowed,
	}
}

func (e SpendRecorded) Args() map[string]any {
	return map[string]any{
		"account": e.Account.Hex(), "token": e.Token.Hex(),
		"amount": e.Amount.String(), "dailyTotal": e.DailyTotal.String(),
	}
}

func (e AttestationSubmitted) Args() map[string]any {
	return map[string]any{
		"id": e.ID.String(), "attester": e.Attester.Hex(), "schema": e.Schema.Hex(), "subject": e.Subject.Hex(),
	}
}

func (e AttestationRevoked) Args() map[string]any {
	return map[string]any{"id": e.ID.String()}
}

func (AgentRegistered) isEvent()          {}
func (AgentUpdated) isEvent()             {}
func (AgentRevoked) isEvent()             {}
func (IntentSubmitted) isEvent()          {}
func (IntentFilled) isEvent()             {}
func (IntentCancelled) isEvent()          {}
func (SpendLimitSet) isEvent()            {}
func (TargetAllowlistUpdated) isEvent()   {}
func (FunctionAllowlistUpdated) isEvent() {}
func (SpendRecorded) isEvent()            {}
func (AttestationSubmitted) isEvent()     {}
func (AttestationRevoked) isEvent()       {}
