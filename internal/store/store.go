package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"

	// Registers the address and hash meddlers the record structs use.
	_ "github.com/intentlabs/agentbook/internal/db"
	"github.com/intentlabs/agentbook/internal/intent"
)

// Store is the ledger's projected state in SQLite. All writes are
// idempotent upserts keyed by chain identifiers, except fills, which are
// plain inserts: the ledger enforces one fill per intent, so the engine
// does not guard against duplicates itself.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertAgent inserts or replaces the agent row.
func (s *Store) UpsertAgent(rec *AgentRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO agents (agent_id, owner, metadata_uri, pubkey, capabilities_hash, revoked, block_number, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			owner = excluded.owner,
			metadata_uri = excluded.metadata_uri,
			pubkey = excluded.pubkey,
			capabilities_hash = excluded.capabilities_hash,
			revoked = excluded.revoked,
			block_number = excluded.block_number,
			updated_at = excluded.updated_at`,
		rec.AgentID, rec.Owner.Hex(), rec.MetadataURI, rec.Pubkey,
		rec.CapabilitiesHash.Hex(), rec.Revoked, rec.BlockNumber, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", rec.AgentID, err)
	}
	return nil
}

// UpdateAgentMetadata replaces the metadata pointer and capabilities hash
// on an existing agent row. A missing row is a no-op, like RevokeAgent:
// the registry only emits updates for agents it registered, so the row
// appears on the registration event's re-ingestion.
func (s *Store) UpdateAgentMetadata(agentID, metadataURI string, capabilitiesHash common.Hash, blockNumber uint64, now time.Time) error {
	_, err := s.db.Exec(`
		UPDATE agents SET metadata_uri = ?, capabilities_hash = ?, block_number = ?, updated_at = ?
		WHERE agent_id = ?`,
		metadataURI, capabilitiesHash.Hex(), blockNumber, now.Unix(), agentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update metadata of agent %s: %w", agentID, err)
	}
	return nil
}

// RevokeAgent flips the revoked flag on an existing agent row. A missing
// row is a no-op.
func (s *Store) RevokeAgent(agentID string, blockNumber uint64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE agents SET revoked = 1, block_number = ?, updated_at = ? WHERE agent_id = ?`,
		blockNumber, now.Unix(), agentID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke agent %s: %w", agentID, err)
	}
	return nil
}

// GetAgent reads one agent row. Returns sql.ErrNoRows when absent.
func (s *Store) GetAgent(agentID string) (*AgentRecord, error) {
	rec := new(AgentRecord)
	if err := meddler.QueryRow(s.db, rec, `SELECT * FROM agents WHERE agent_id = ?`, agentID); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertIntent inserts or replaces the intent row.
func (s *Store) UpsertIntent(rec *IntentRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO intents (intent_id, owner, intent_type, input_token, output_token,
			amount_in_max, amount_out_min, deadline, slippage_bps, nonce, status, block_number, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(intent_id) DO UPDATE SET
			owner = excluded.owner,
			intent_type = excluded.intent_type,
			input_token = excluded.input_token,
			output_token = excluded.output_token,
			amount_in_max = excluded.amount_in_max,
			amount_out_min = excluded.amount_out_min,
			deadline = excluded.deadline,
			slippage_bps = excluded.slippage_bps,
			nonce = excluded.nonce,
			status = excluded.status,
			block_number = excluded.block_number,
			updated_at = excluded.updated_at`,
		rec.IntentID, rec.Owner.Hex(), rec.IntentType, rec.InputToken.Hex(), rec.OutputToken.Hex(),
		rec.AmountInMax, rec.AmountOutMin, rec.Deadline, rec.SlippageBps, rec.Nonce,
		rec.Status, rec.BlockNumber, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert intent %s: %w", rec.IntentID, err)
	}
	return nil
}

// UpdateIntentStatus sets the stored status of an intent. EXPIRED must
// never be written here; it is derived at read time.
func (s *Store) UpdateIntentStatus(intentID string, status intent.Status, blockNumber uint64, now time.Time) error {
	if status == intent.StatusExpired {
		return fmt.Errorf("refusing to store derived status EXPIRED for intent %s", intentID)
	}
	_, err := s.db.Exec(
		`UPDATE intents SET status = ?, block_number = ?, updated_at = ? WHERE intent_id = ?`,
		status.String(), blockNumber, now.Unix(), intentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of intent %s: %w", intentID, err)
	}
	return nil
}

// GetIntent reads one intent row. Returns sql.ErrNoRows when absent.
func (s *Store) GetIntent(intentID string) (*IntentRecord, error) {
	rec := new(IntentRecord)
	if err := meddler.QueryRow(s.db, rec, `SELECT * FROM intents WHERE intent_id = ?`, intentID); err != nil {
		return nil, err
	}
	return rec, nil
}

// InsertFill appends a fill row.
func (s *Store) InsertFill(rec *FillRecord) error {
	if err := meddler.Insert(s.db, "fills", rec); err != nil {
		return fmt.Errorf("failed to insert fill for intent %s: %w", rec.IntentID, err)
	}
	return nil
}

// ListFills returns the fills recorded for an intent, oldest first.
func (s *Store) ListFills(intentID string) ([]*FillRecord, error) {
	var fills []*FillRecord
	err := meddler.QueryAll(s.db, &fills,
		`SELECT * FROM fills WHERE intent_id = ? ORDER BY id`, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fills for intent %s: %w", intentID, err)
	}
	return fills, nil
}

// UpsertPolicy inserts or replaces one policy row under its composite key.
func (s *Store) UpsertPolicy(rec *PolicyRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO policies (account, policy_type, token, target, selector, value, block_number, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, policy_type, token, target, selector) DO UPDATE SET
			value = excluded.value,
			block_number = excluded.block_number,
			updated_at = excluded.updated_at`,
		rec.Account.Hex(), rec.PolicyType, rec.Token.Hex(), rec.Target.Hex(),
		rec.Selector, rec.Value, rec.BlockNumber, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s policy for %s: %w", rec.PolicyType, rec.Account.Hex(), err)
	}
	return nil
}

// GetPolicy reads one policy row by its full composite key.
func (s *Store) GetPolicy(account common.Address, policyType string, token, target common.Address, selector string) (*PolicyRecord, error) {
	rec := new(PolicyRecord)
	err := meddler.QueryRow(s.db, rec, `
		SELECT * FROM policies
		WHERE account = ? AND policy_type = ? AND token = ? AND target = ? AND selector = ?`,
		account.Hex(), policyType, token.Hex(), target.Hex(), selector)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertAttestation inserts or replaces the attestation row.
func (s *Store) UpsertAttestation(rec *AttestationRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO attestations (attestation_id, attester, schema_hash, subject, revoked, block_number, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(attestation_id) DO UPDATE SET
			attester = excluded.attester,
			schema_hash = excluded.schema_hash,
			subject = excluded.subject,
			revoked = excluded.revoked,
			block_number = excluded.block_number,
			updated_at = excluded.updated_at`,
		rec.AttestationID, rec.Attester.Hex(), rec.SchemaHash.Hex(), rec.Subject.Hex(),
		rec.Revoked, rec.BlockNumber, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert attestation %s: %w", rec.AttestationID, err)
	}
	return nil
}

// RevokeAttestation flips the revoked flag on an existing attestation row.
func (s *Store) RevokeAttestation(attestationID string, blockNumber uint64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE attestations SET revoked = 1, block_number = ?, updated_at = ? WHERE attestation_id = ?`,
		blockNumber, now.Unix(), attestationID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke attestation %s: %w", attestationID, err)
	}
	return nil
}

// GetAttestation reads one attestation row. Returns sql.ErrNoRows when
// absent.
func (s *Store) GetAttestation(attestationID string) (*AttestationRecord, error) {
	rec := new(AttestationRecord)
	if err := meddler.QueryRow(s.db, rec, `SELECT * FROM attestations WHERE attestation_id = ?`, attestationID); err != nil {
		return nil, err
	}
	return rec, nil
}

// AppendTxEvents records decoded-event summaries against the transaction
// digest, appending to any already present. Reprocessed batches append
// duplicates; the digest is best-effort, not deduplicated.
func (s *Store) AppendTxEvents(txHash common.Hash, blockNumber uint64, to common.Address, summaries []TxEvent) error {
	if len(summaries) == 0 {
		return nil
	}

	var existing []TxEvent
	rec := new(TxReceiptRecord)
	err := meddler.QueryRow(s.db, rec, `SELECT * FROM tx_receipts WHERE tx_hash = ?`, txHash.Hex())
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(rec.Events), &existing); err != nil {
			existing = nil
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("failed to read tx digest %s: %w", txHash.Hex(), err)
	}

	merged, err := json.Marshal(append(existing, summaries...))
	if err != nil {
		return fmt.Errorf("failed to encode tx digest %s: %w", txHash.Hex(), err)
	}

	_, err = s.db.Exec(`
		INSERT INTO tx_receipts (tx_hash, block_number, to_address, events)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tx_hash) DO UPDATE SET
			block_number = excluded.block_number,
			to_address = excluded.to_address,
			events = excluded.events`,
		txHash.Hex(), blockNumber, to.Hex(), string(merged),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tx digest %s: %w", txHash.Hex(), err)
	}
	return nil
}

// GetTxReceipt reads one transaction digest row. Returns sql.ErrNoRows
// when absent.
func (s *Store) GetTxReceipt(txHash common.Hash) (*TxReceiptRecord, error) {
	rec := new(TxReceiptRecord)
	if err := meddler.QueryRow(s.db, rec, `SELECT * FROM tx_receipts WHERE tx_hash = ?`, txHash.Hex()); err != nil {
		return nil, err
	}
	return rec, nil
}
