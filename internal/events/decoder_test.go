package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddr    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bookAddr        = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	policyAddr      = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	attestationAddr = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
)

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func testDecoder() *Decoder {
	return NewDecoder(map[common.Address]Schema{
		registryAddr:    SchemaAgentRegistry,
		bookAddr:        SchemaIntentBook,
		policyAddr:      SchemaPolicyModule,
		attestationAddr: SchemaAttestationRegistry,
	})
}

func TestDecodeAgentRegistered(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data, err := agentRegisteredData.Pack("ipfs://agent-meta")
	require.NoError(t, err)

	ev, err := testDecoder().Decode(types.Log{
		Address:     registryAddr,
		Topics:      []common.Hash{TopicAgentRegistered, common.BigToHash(big.NewInt(42)), addrTopic(owner)},
		Data:        data,
		BlockNumber: 100,
		Index:       3,
	})
	require.NoError(t, err)

	reg, ok := ev.(AgentRegistered)
	require.True(t, ok)
	assert.Equal(t, "AgentRegistered", reg.Name())
	assert.Equal(t, int64(42), reg.AgentID.Int64())
	assert.Equal(t, owner, reg.Owner)
	assert.Equal(t, "ipfs://agent-meta", reg.MetadataURI)
	assert.Equal(t, uint64(100), reg.Log().BlockNumber)
	assert.Equal(t, uint(3), reg.Log().Index)
}

func TestDecodeIntentFilled(t *testing.T) {
	solver := common.HexToAddress("0x2222222222222222222222222222222222222222")
	data, err := intentFilledData.Pack(big.NewInt(1000), big.NewInt(950))
	require.NoError(t, err)

	ev, err := testDecoder().Decode(types.Log{
		Address: bookAddr,
		Topics:  []common.Hash{TopicIntentFilled, common.BigToHash(big.NewInt(7)), addrTopic(solver)},
		Data:    data,
	})
	require.NoError(t, err)

	filled, ok := ev.(IntentFilled)
	require.True(t, ok)
	assert.Equal(t, int64(7), filled.IntentID.Int64())
	assert.Equal(t, solver, filled.Solver)
	assert.Equal(t, int64(1000), filled.AmountIn.Int64())
	assert.Equal(t, int64(950), filled.AmountOut.Int64())
	assert.Equal(t, map[string]any{
		"intentId":  "7",
		"solver":    solver.Hex(),
		"amountIn":  "1000",
		"amountOut": "950",
	}, filled.Args())
}

func TestDecodeFunctionAllowlistUpdated(t *testing.T) {
	account := common.HexToAddress("0x3333333333333333333333333333333333333333")
	target := common.HexToAddress("0x4444444444444444444444444444444444444444")
	selector := [4]byte{0xa9, 0x05, 0x9c, 0xbb}
	data, err := functionAllowlistData.Pack(selector, true)
	require.NoError(t, err)

	ev, err := testDecoder().Decode(types.Log{
		Address: policyAddr,
		Topics:  []common.Hash{TopicFunctionAllowlistUpdated, addrTopic(account), addrTopic(target)},
		Data:    data,
	})
	require.NoError(t, err)

	upd, ok := ev.(FunctionAllowlistUpdated)
	require.True(t, ok)
	assert.Equal(t, account, upd.Account)
	assert.Equal(t, target, upd.Target)
	assert.Equal(t, selector, upd.Selector)
	assert.True(t, upd.Allowed)
}

func TestDecodeAttestationSubmitted(t *testing.T) {
	attester := common.HexToAddress("0x5555555555555555555555555555555555555555")
	schema := common.HexToHash("0x01")
	subject := common.HexToHash("0x02")
	data, err := attestationSubmittedData.Pack([32]byte(subject))
	require.NoError(t, err)

	ev, err := testDecoder().Decode(types.Log{
		Address: attestationAddr,
		Topics:  []common.Hash{TopicAttestationSubmitted, common.BigToHash(big.NewInt(9)), addrTopic(attester), schema},
		Data:    data,
	})
	require.NoError(t, err)

	sub, ok := ev.(AttestationSubmitted)
	require.True(t, ok)
	assert.Equal(t, int64(9), sub.ID.Int64())
	assert.Equal(t, attester, sub.Attester)
	assert.Equal(t, schema, sub.Schema)
	assert.Equal(t, subject, sub.Subject)
}

func TestDecodeUnknownAddress(t *testing.T) {
	_, err := testDecoder().Decode(types.Log{
		Address: common.HexToAddress("0x9999999999999999999999999999999999999999"),
		Topics:  []common.Hash{TopicIntentSubmitted},
	})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeTopicOutsideSchema(t *testing.T) {
	// A real intent-book topic emitted by the registry address must not be
	// misfiled as an intent event.
	data, err := intentSubmittedData.Pack(big.NewInt(1))
	require.NoError(t, err)

	_, err = testDecoder().Decode(types.Log{
		Address: registryAddr,
		Topics: []common.Hash{
			TopicIntentSubmitted,
			common.BigToHash(big.NewInt(1)),
			addrTopic(common.HexToAddress("0x1111111111111111111111111111111111111111")),
		},
		Data: data,
	})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeNoTopics(t *testing.T) {
	_, err := testDecoder().Decode(types.Log{Address: bookAddr})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeMalformedKnownEvent(t *testing.T) {
	// Right topic, wrong topic count: this is a malformed event, not an
	// unknown one.
	_, err := testDecoder().Decode(types.Log{
		Address: bookAddr,
		Topics:  []common.Hash{TopicIntentFilled, common.BigToHash(big.NewInt(7))},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownEvent)

	// Truncated data on a recognized event fails the unpack.
	_, err = testDecoder().Decode(types.Log{
		Address: bookAddr,
		Topics: []common.Hash{
			TopicIntentFilled,
			common.BigToHash(big.NewInt(7)),
			addrTopic(common.HexToAddress("0x2222222222222222222222222222222222222222")),
		},
		Data: []byte{0x01, 0x02},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownEvent)
}

func TestWatched(t *testing.T) {
	assert.ElementsMatch(t,
		[]common.Address{registryAddr, bookAddr, policyAddr, attestationAddr},
		testDecoder().Watched(),
	)
}
