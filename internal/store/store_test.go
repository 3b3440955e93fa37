package store

import (
	"database/sql"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentlabs/agentbook/internal/db"
	"github.com/intentlabs/agentbook/internal/intent"
	"github.com/intentlabs/agentbook/internal/logger"
	"github.com/intentlabs/agentbook/internal/migrations"
)

var (
	testOwner  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSolver = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testNow    = time.Unix(1700000000, 0)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	sqlDB, err := db.NewSQLiteDB(t.TempDir() + "/store_test.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, migrations.RunMigrationsDB(logger.NewNopLogger(), sqlDB))
	return New(sqlDB)
}

func testAgent() *AgentRecord {
	return &AgentRecord{
		AgentID:          "1",
		Owner:            testOwner,
		MetadataURI:      "ipfs://meta",
		Pubkey:           "0x0102",
		CapabilitiesHash: common.HexToHash("0xbeef"),
		BlockNumber:      10,
		UpdatedAt:        testNow.Unix(),
	}
}

func TestAgentUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertAgent(testAgent()))
	require.NoError(t, s.UpsertAgent(testAgent()))

	got, err := s.GetAgent("1")
	require.NoError(t, err)
	assert.Equal(t, testOwner, got.Owner)
	assert.Equal(t, "ipfs://meta", got.MetadataURI)
	assert.False(t, got.Revoked)
}

func TestAgentReingestionConverges(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertAgent(testAgent()))

	updated := testAgent()
	updated.MetadataURI = "ipfs://meta-v2"
	updated.BlockNumber = 20
	require.NoError(t, s.UpsertAgent(updated))

	got, err := s.GetAgent("1")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta-v2", got.MetadataURI)
	assert.Equal(t, uint64(20), got.BlockNumber)
}

func TestUpdateAgentMetadata(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertAgent(testAgent()))
	require.NoError(t, s.UpdateAgentMetadata("1", "ipfs://meta-v2", common.HexToHash("0xcafe"), 25, testNow))

	got, err := s.GetAgent("1")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta-v2", got.MetadataURI)
	assert.Equal(t, common.HexToHash("0xcafe"), got.CapabilitiesHash)
	assert.Equal(t, uint64(25), got.BlockNumber)
	assert.Equal(t, testOwner, got.Owner)

	// Updating an agent we never saw changes nothing.
	require.NoError(t, s.UpdateAgentMetadata("999", "ipfs://ghost", common.HexToHash("0xdead"), 25, testNow))
	_, err = s.GetAgent("999")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRevokeAgent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertAgent(testAgent()))
	require.NoError(t, s.RevokeAgent("1", 30, testNow))

	got, err := s.GetAgent("1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, uint64(30), got.BlockNumber)

	// Revoking an agent we never saw changes nothing.
	require.NoError(t, s.RevokeAgent("999", 30, testNow))
	_, err = s.GetAgent("999")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func testIntent() intent.Intent {
	return intent.Intent{
		Owner:      testOwner,
		IntentType: intent.TypeSwapExactInMaxSlippage,
		Constraints: intent.Constraints{
			AmountInMax:  big.NewInt(1000),
			AmountOutMin: big.NewInt(900),
			Deadline:     big.NewInt(testNow.Add(time.Hour).Unix()),
			SlippageBps:  50,
		},
		InputToken:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		OutputToken: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Nonce:       big.NewInt(7),
	}
}

func TestIntentLifecycle(t *testing.T) {
	s := newTestStore(t)

	rec := NewIntentRecord(big.NewInt(7), testIntent(), intent.StatusOpen, 10, testNow)
	require.NoError(t, s.UpsertIntent(rec))

	got, err := s.GetIntent("7")
	require.NoError(t, err)
	assert.Equal(t, "OPEN", got.Status)
	assert.Equal(t, "1000", got.AmountInMax)
	assert.Equal(t, uint16(50), got.SlippageBps)

	require.NoError(t, s.UpdateIntentStatus("7", intent.StatusFilled, 20, testNow))
	got, err = s.GetIntent("7")
	require.NoError(t, err)
	assert.Equal(t, "FILLED", got.Status)
}

func TestIntentLargeAmountsSurvive(t *testing.T) {
	s := newTestStore(t)

	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	in := testIntent()
	in.Constraints.AmountInMax = huge
	require.NoError(t, s.UpsertIntent(NewIntentRecord(big.NewInt(8), in, intent.StatusOpen, 10, testNow)))

	got, err := s.GetIntent("8")
	require.NoError(t, err)
	assert.Equal(t, huge.String(), got.AmountInMax)
}

func TestStoredExpiredIsRefused(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateIntentStatus("7", intent.StatusExpired, 20, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXPIRED")
}

func TestEffectiveStatus(t *testing.T) {
	past := big.NewInt(testNow.Add(-time.Hour).Unix()).String()
	future := big.NewInt(testNow.Add(time.Hour).Unix()).String()

	tests := []struct {
		name     string
		status   string
		deadline string
		want     string
	}{
		{name: "open with future deadline", status: "OPEN", deadline: future, want: "OPEN"},
		{name: "open with past deadline", status: "OPEN", deadline: past, want: "EXPIRED"},
		{name: "filled ignores deadline", status: "FILLED", deadline: past, want: "FILLED"},
		{name: "cancelled ignores deadline", status: "CANCELLED", deadline: past, want: "CANCELLED"},
		{name: "unparseable deadline reads as stored", status: "OPEN", deadline: "bogus", want: "OPEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &IntentRecord{Status: tt.status, Deadline: tt.deadline}
			assert.Equal(t, tt.want, rec.EffectiveStatus(testNow))
		})
	}
}

func TestFillsInsertWithoutConflictGuard(t *testing.T) {
	s := newTestStore(t)

	fill := &FillRecord{
		IntentID:    "7",
		Solver:      testSolver,
		AmountIn:    "1000",
		AmountOut:   "950",
		TxHash:      common.HexToHash("0xabc"),
		BlockNumber: 20,
		CreatedAt:   testNow.Unix(),
	}
	require.NoError(t, s.InsertFill(fill))

	// A reprocessed batch inserts the same fill again and both rows stick.
	fill2 := *fill
	fill2.ID = 0
	require.NoError(t, s.InsertFill(&fill2))

	fills, err := s.ListFills("7")
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, testSolver, fills[0].Solver)
	assert.Equal(t, "950", fills[1].AmountOut)
}

func TestPolicyCompositeKeys(t *testing.T) {
	s := newTestStore(t)

	account := testOwner
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")
	target := common.HexToAddress("0x4444444444444444444444444444444444444444")
	selector := [4]byte{0xa9, 0x05, 0x9c, 0xbb}

	require.NoError(t, s.UpsertPolicy(SpendLimitPolicy(account, token, big.NewInt(5000), 10, testNow)))
	require.NoError(t, s.UpsertPolicy(TargetAllowlistPolicy(account, target, true, 10, testNow)))
	require.NoError(t, s.UpsertPolicy(FunctionAllowlistPolicy(account, target, selector, true, 10, testNow)))

	spend, err := s.GetPolicy(account, PolicyTypeSpendLimit, token, common.Address{}, zeroSelector)
	require.NoError(t, err)
	assert.Equal(t, "5000", spend.Value)

	// The function-level row lives beside the target-level row, not on
	// top of it.
	targetRow, err := s.GetPolicy(account, PolicyTypeTargetAllowlist, common.Address{}, target, zeroSelector)
	require.NoError(t, err)
	assert.Equal(t, "1", targetRow.Value)

	fnRow, err := s.GetPolicy(account, PolicyTypeFunctionAllowlist, common.Address{}, target, "0xa9059cbb")
	require.NoError(t, err)
	assert.Equal(t, "1", fnRow.Value)
}

func TestPolicyDisallowIsAValueNotADelete(t *testing.T) {
	s := newTestStore(t)

	target := common.HexToAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, s.UpsertPolicy(TargetAllowlistPolicy(testOwner, target, true, 10, testNow)))
	require.NoError(t, s.UpsertPolicy(TargetAllowlistPolicy(testOwner, target, false, 20, testNow)))

	row, err := s.GetPolicy(testOwner, PolicyTypeTargetAllowlist, common.Address{}, target, zeroSelector)
	require.NoError(t, err)
	assert.Equal(t, "0", row.Value)
	assert.Equal(t, uint64(20), row.BlockNumber)
}

func TestAttestationLifecycle(t *testing.T) {
	s := newTestStore(t)

	rec := &AttestationRecord{
		AttestationID: "9",
		Attester:      testOwner,
		SchemaHash:    common.HexToHash("0x01"),
		Subject:       common.HexToHash("0x02"),
		BlockNumber:   10,
		UpdatedAt:     testNow.Unix(),
	}
	require.NoError(t, s.UpsertAttestation(rec))
	require.NoError(t, s.RevokeAttestation("9", 20, testNow))

	got, err := s.GetAttestation("9")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, common.HexToHash("0x01"), got.SchemaHash)
}

func TestAppendTxEvents(t *testing.T) {
	s := newTestStore(t)

	txHash := common.HexToHash("0xdead")
	to := common.HexToAddress("0x5555555555555555555555555555555555555555")

	submitted := TxEvent{Name: "IntentSubmitted", Args: map[string]any{"intentId": "7", "nonce": "9"}}
	filled := TxEvent{Name: "IntentFilled", Args: map[string]any{"intentId": "7", "amountIn": "1000"}}

	require.NoError(t, s.AppendTxEvents(txHash, 10, to, []TxEvent{submitted}))
	require.NoError(t, s.AppendTxEvents(txHash, 10, to, []TxEvent{filled}))

	rec, err := s.GetTxReceipt(txHash)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name":"IntentSubmitted","args":{"intentId":"7","nonce":"9"}},
		{"name":"IntentFilled","args":{"intentId":"7","amountIn":"1000"}}
	]`, rec.Events)
	assert.Equal(t, to, rec.ToAddress)

	// Reprocessing appends duplicates; the digest is best-effort.
	require.NoError(t, s.AppendTxEvents(txHash, 10, to, []TxEvent{submitted}))
	rec, err = s.GetTxReceipt(txHash)
	require.NoError(t, err)

	var summaries []TxEvent
	require.NoError(t, json.Unmarshal([]byte(rec.Events), &summaries))
	require.Len(t, summaries, 3)
	assert.Equal(t, "IntentSubmitted", summaries[0].Name)
	assert.Equal(t, "IntentFilled", summaries[1].Name)
	assert.Equal(t, "IntentSubmitted", summaries[2].Name)
	assert.Equal(t, "7", summaries[2].Args["intentId"])
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.LastProcessedBlock()
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetLastProcessedBlock(1234, testNow))

	block, found, err := s.LastProcessedBlock()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(1234), block)

	require.NoError(t, s.SetLastProcessedBlock(1300, testNow))
	block, _, err = s.LastProcessedBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(1300), block)
}
