package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/intentlabs/agentbook/internal/rpc"
)

const agentRegistryABI = `[
	{"type":"function","name":"getAgent","stateMutability":"view",
	 "inputs":[{"name":"agentId","type":"uint256"}],
	 "outputs":[{"name":"record","type":"tuple","components":[
		{"name":"owner","type":"address"},
		{"name":"metadataURI","type":"string"},
		{"name":"pubkey","type":"bytes"},
		{"name":"capabilitiesHash","type":"bytes32"},
		{"name":"revoked","type":"bool"}]}]}
]`

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded abi: %v", err))
	}
	return parsed
}

var registryABI = mustParseABI(agentRegistryABI)

// Wire layout for abi tuple conversion. Field order and names must match
// the tuple components above.
type rawAgent struct {
	Owner            common.Address
	MetadataURI      string
	Pubkey           []byte
	CapabilitiesHash [32]byte
	Revoked          bool
}

// Agent is the registry's current record for one agent identity.
type Agent struct {
	Owner            common.Address
	MetadataURI      string
	Pubkey           []byte
	CapabilitiesHash common.Hash
	Revoked          bool
}

// AgentRegistry reads agent records from the on-chain registry.
type AgentRegistry struct {
	addr   common.Address
	client rpc.ChainClient
}

func NewAgentRegistry(addr common.Address, client rpc.ChainClient) *AgentRegistry {
	return &AgentRegistry{addr: addr, client: client}
}

// Address returns the registry contract address.
func (r *AgentRegistry) Address() common.Address {
	return r.addr
}

// GetAgent reads the current registry state for the agent id.
func (r *AgentRegistry) GetAgent(ctx context.Context, agentID *big.Int) (Agent, error) {
	data, err := registryABI.Pack("getAgent", agentID)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to pack getAgent(%s): %w", agentID, err)
	}

	ret, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.addr, Data: data})
	if err != nil {
		return Agent{}, fmt.Errorf("getAgent(%s) call failed: %w", agentID, err)
	}

	out, err := registryABI.Unpack("getAgent", ret)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to unpack getAgent(%s): %w", agentID, err)
	}

	raw := *abi.ConvertType(out[0], new(rawAgent)).(*rawAgent)

	return Agent{
		Owner:            raw.Owner,
		MetadataURI:      raw.MetadataURI,
		Pubkey:           raw.Pubkey,
		CapabilitiesHash: common.Hash(raw.CapabilitiesHash),
		Revoked:          raw.Revoked,
	}, nil
}
