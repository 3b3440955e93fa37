package events

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Schema identifies which contract vocabulary applies to a watched address.
type Schema string

const (
	SchemaAgentRegistry       Schema = "agent-registry"
	SchemaIntentBook          Schema = "intent-book"
	SchemaPolicyModule        Schema = "policy-module"
	SchemaAttestationRegistry Schema = "attestation-registry"
)

// ErrUnknownEvent marks a log the decoder has no variant for: an unwatched
// address, a missing topic0, or a topic that does not belong to the
// address's schema. Callers skip these; any other decode error means a
// recognized event arrived malformed.
var ErrUnknownEvent = errors.New("unknown event")

// Event signature topics, hashed once at startup.
var (
	TopicAgentRegistered          = crypto.Keccak256Hash([]byte("AgentRegistered(uint256,address,string)"))
	TopicAgentUpdated             = crypto.Keccak256Hash([]byte("AgentUpdated(uint256,string,bytes32)"))
	TopicAgentRevoked             = crypto.Keccak256Hash([]byte("AgentRevoked(uint256)"))
	TopicIntentSubmitted          = crypto.Keccak256Hash([]byte("IntentSubmitted(uint256,address,uint256)"))
	TopicIntentFilled             = crypto.Keccak256Hash([]byte("IntentFilled(uint256,address,uint256,uint256)"))
	TopicIntentCancelled          = crypto.Keccak256Hash([]byte("IntentCancelled(uint256)"))
	TopicSpendLimitSet            = crypto.Keccak256Hash([]byte("SpendLimitSet(address,address,uint256)"))
	TopicTargetAllowlistUpdated   = crypto.Keccak256Hash([]byte("TargetAllowlistUpdated(address,address,bool)"))
	TopicFunctionAllowlistUpdated = crypto.Keccak256Hash([]byte("FunctionAllowlistUpdated(address,address,bytes4,bool)"))
	TopicSpendRecorded            = crypto.Keccak256Hash([]byte("SpendRecorded(address,address,uint256,uint256)"))
	TopicAttestationSubmitted     = crypto.Keccak256Hash([]byte("AttestationSubmitted(uint256,address,bytes32,bytes32)"))
	TopicAttestationRevoked       = crypto.Keccak256Hash([]byte("AttestationRevoked(uint256)"))
)

// Non-indexed argument layouts for unpacking log data.
var (
	agentRegisteredData      = dataArgs("string")
	agentUpdatedData         = dataArgs("string", "bytes32")
	intentSubmittedData      = dataArgs("uint256")
	intentFilledData         = dataArgs("uint256", "uint256")
	spendLimitSetData        = dataArgs("uint256")
	targetAllowlistData      = dataArgs("bool")
	functionAllowlistData    = dataArgs("bytes4", "bool")
	spendRecordedData        = dataArgs("uint256", "uint256")
	attestationSubmittedData = dataArgs("bytes32")
)

func dataArgs(solTypes ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(solTypes))
	for _, st := range solTypes {
		typ, err := abi.NewType(st, "", nil)
		if err != nil {
			panic(fmt.Sprintf("invalid abi type %q: %v", st, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Decoder maps raw logs from watched contracts to typed events. A topic
// is only recognized under the schema of the address that emitted it, so
// a signature collision across contracts cannot misfile an event.
type Decoder struct {
	schemas map[common.Address]Schema
}

func NewDecoder(schemas map[common.Address]Schema) *Decoder {
	owned := make(map[common.Address]Schema, len(schemas))
	for addr, schema := range schemas {
		owned[addr] = schema
	}
	return &Decoder{schemas: owned}
}

// Watched returns the addresses the decoder recognizes.
func (d *Decoder) Watched() []common.Address {
	addrs := make([]common.Address, 0, len(d.schemas))
	for addr := range d.schemas {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Decode maps a log to its typed event. Errors wrapping ErrUnknownEvent
// mean the log is simply not ours; other errors mean a recognized event
// failed to parse. Decode never panics on malformed input.
func (d *Decoder) Decode(lg types.Log) (Event, error) {
	schema, ok := d.schemas[lg.Address]
	if !ok {
		return nil, fmt.Errorf("%w: address %s is not watched", ErrUnknownEvent, lg.Address)
	}
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("%w: log without topics from %s", ErrUnknownEvent, lg.Address)
	}

	topic := lg.Topics[0]

	switch schema {
	case SchemaAgentRegistry:
		switch topic {
		case TopicAgentRegistered:
			return parseAgentRegistered(lg)
		case TopicAgentUpdated:
			return parseAgentUpdated(lg)
		case TopicAgentRevoked:
			return parseAgentRevoked(lg)
		}
	case SchemaIntentBook:
		switch topic {
		case TopicIntentSubmitted:
			return parseIntentSubmitted(lg)
		case TopicIntentFilled:
			return parseIntentFilled(lg)
		case TopicIntentCancelled:
			return parseIntentCancelled(lg)
		}
	case SchemaPolicyModule:
		switch topic {
		case TopicSpendLimitSet:
			return parseSpendLimitSet(lg)
		case TopicTargetAllowlistUpdated:
			return parseTargetAllowlistUpdated(lg)
		case TopicFunctionAllowlistUpdated:
			return parseFunctionAllowlistUpdated(lg)
		case TopicSpendRecorded:
			return parseSpendRecorded(lg)
		}
	case SchemaAttestationRegistry:
		switch topic {
		case TopicAttestationSubmitted:
			return parseAttestationSubmitted(lg)
		case TopicAttestationRevoked:
			return parseAttestationRevoked(lg)
		}
	}

	return nil, fmt.Errorf("%w: topic %s is not part of schema %s", ErrUnknownEvent, topic, schema)
}

func requireTopics(lg types.Log, name string, want int) error {
	if len(lg.Topics) != want {
		return fmt.Errorf("invalid %s event: expected %d topics, got %d", name, want, len(lg.Topics))
	}
	return nil
}

func topicBig(lg types.Log, i int) *big.Int {
	return new(big.Int).SetBytes(lg.Topics[i].Bytes())
}

func topicAddress(lg types.Log, i int) common.Address {
	return common.BytesToAddress(lg.Topics[i].Bytes())
}

func parseAgentRegistered(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "AgentRegistered", 3); err != nil {
		return nil, err
	}
	vals, err := agentRegisteredData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack AgentRegistered data: %w", err)
	}
	return AgentRegistered{
		Raw:         lg,
		AgentID:     topicBig(lg, 1),
		Owner:       topicAddress(lg, 2),
		MetadataURI: vals[0].(string),
	}, nil
}

func parseAgentUpdated(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "AgentUpdated", 2); err != nil {
		return nil, err
	}
	vals, err := agentUpdatedData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack AgentUpdated data: %w", err)
	}
	return AgentUpdated{
		Raw:              lg,
		AgentID:          topicBig(lg, 1),
		MetadataURI:      vals[0].(string),
		CapabilitiesHash: common.Hash(vals[1].([32]byte)),
	}, nil
}

func parseAgentRevoked(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "AgentRevoked", 2); err != nil {
		return nil, err
	}
	return AgentRevoked{Raw: lg, AgentID: topicBig(lg, 1)}, nil
}

func parseIntentSubmitted(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "IntentSubmitted", 3); err != nil {
		return nil, err
	}
	vals, err := intentSubmittedData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack IntentSubmitted data: %w", err)
	}
	return IntentSubmitted{
		Raw:      lg,
		IntentID: topicBig(lg, 1),
		Owner:    topicAddress(lg, 2),
		Nonce:    vals[0].(*big.Int),
	}, nil
}

func parseIntentFilled(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "IntentFilled", 3); err != nil {
		return nil, err
	}
	vals, err := intentFilledData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack IntentFilled data: %w", err)
	}
	return IntentFilled{
		Raw:       lg,
		IntentID:  topicBig(lg, 1),
		Solver:    topicAddress(lg, 2),
		AmountIn:  vals[0].(*big.Int),
		AmountOut: vals[1].(*big.Int),
	}, nil
}

func parseIntentCancelled(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "IntentCancelled", 2); err != nil {
		return nil, err
	}
	return IntentCancelled{Raw: lg, IntentID: topicBig(lg, 1)}, nil
}

func parseSpendLimitSet(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "SpendLimitSet", 3); err != nil {
		return nil, err
	}
	vals, err := spendLimitSetData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack SpendLimitSet data: %w", err)
	}
	return SpendLimitSet{
		Raw:       lg,
		Account:   topicAddress(lg, 1),
		Token:     topicAddress(lg, 2),
		MaxPerDay: vals[0].(*big.Int),
	}, nil
}

func parseTargetAllowlistUpdated(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "TargetAllowlistUpdated", 3); err != nil {
		return nil, err
	}
	vals, err := targetAllowlistData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack TargetAllowlistUpdated data: %w", err)
	}
	return TargetAllowlistUpdated{
		Raw:     lg,
		Account: topicAddress(lg, 1),
		Target:  topicAddress(lg, 2),
		Allowed: vals[0].(bool),
	}, nil
}

func parseFunctionAllowlistUpdated(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "FunctionAllowlistUpdated", 3); err != nil {
		return nil, err
	}
	vals, err := functionAllowlistData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack FunctionAllowlistUpdated data: %w", err)
	}
	return FunctionAllowlistUpdated{
		Raw:      lg,
		Account:  topicAddress(lg, 1),
		Target:   topicAddress(lg, 2),
		Selector: vals[0].([4]byte),
		Allowed:  vals[1].(bool),
	}, nil
}

func parseSpendRecorded(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "SpendRecorded", 3); err != nil {
		return nil, err
	}
	vals, err := spendRecordedData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack SpendRecorded data: %w", err)
	}
	return SpendRecorded{
		Raw:        lg,
		Account:    topicAddress(lg, 1),
		Token:      topicAddress(lg, 2),
		Amount:     vals[0].(*big.Int),
		DailyTotal: vals[1].(*big.Int),
	}, nil
}

func parseAttestationSubmitted(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "AttestationSubmitted", 4); err != nil {
		return nil, err
	}
	vals, err := attestationSubmittedData.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack AttestationSubmitted data: %w", err)
	}
	return AttestationSubmitted{
		Raw:      lg,
		ID:       topicBig(lg, 1),
		Attester: topicAddress(lg, 2),
		Schema:   lg.Topics[3],
		Subject:  common.Hash(vals[0].([32]byte)),
	}, nil
}

func parseAttestationRevoked(lg types.Log) (Event, error) {
	if err := requireTopics(lg, "AttestationRevoked", 2); err != nil {
		return nil, err
	}
	return AttestationRevoked{Raw: lg, ID: topicBig(lg, 1)}, nil
}
