package ingest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/intentlabs/agentbook/internal/events"
	"github.com/intentlabs/agentbook/internal/intent"
	"github.com/intentlabs/agentbook/internal/store"
)

// handle applies one decoded event to the state store. Registration and
// submission handlers enrich the event with current contract state before
// writing; everything else writes straight from the event payload. Any
// returned error aborts the cycle.
func (i *Ingestor) handle(ctx context.Context, ev events.Event) error {
	now := i.now()

	switch e := ev.(type) {
	case events.AgentRegistered:
		agent, err := i.registry.GetAgent(ctx, e.AgentID)
		if err != nil {
			return err
		}
		return i.store.UpsertAgent(&store.AgentRecord{
			AgentID:          e.AgentID.String(),
			Owner:            agent.Owner,
			MetadataURI:      agent.MetadataURI,
			Pubkey:           hexutil.Encode(agent.Pubkey),
			CapabilitiesHash: agent.CapabilitiesHash,
			Revoked:          agent.Revoked,
			BlockNumber:      e.Raw.BlockNumber,
			UpdatedAt:        now.Unix(),
		})

	case events.AgentUpdated:
		return i.store.UpdateAgentMetadata(e.AgentID.String(), e.MetadataURI, e.CapabilitiesHash, e.Raw.BlockNumber, now)

	case events.AgentRevoked:
		return i.store.RevokeAgent(e.AgentID.String(), e.Raw.BlockNumber, now)

	case events.IntentSubmitted:
		in, err := i.book.GetIntent(ctx, e.IntentID)
		if err != nil {
			return err
		}
		return i.store.UpsertIntent(store.NewIntentRecord(e.IntentID, in, intent.StatusOpen, e.Raw.BlockNumber, now))

	case events.IntentFilled:
		if err := i.store.InsertFill(&store.FillRecord{
			IntentID:    e.IntentID.String(),
			Solver:      e.Solver,
			AmountIn:    e.AmountIn.String(),
			AmountOut:   e.AmountOut.String(),
			TxHash:      e.Raw.TxHash,
			BlockNumber: e.Raw.BlockNumber,
			CreatedAt:   now.Unix(),
		}); err != nil {
			return err
		}
		return i.store.UpdateIntentStatus(e.IntentID.String(), intent.StatusFilled, e.Raw.BlockNumber, now)

	case events.IntentCancelled:
		return i.store.UpdateIntentStatus(e.IntentID.String(), intent.StatusCancelled, e.Raw.BlockNumber, now)

	case events.SpendLimitSet:
		return i.store.UpsertPolicy(store.SpendLimitPolicy(e.Account, e.Token, e.MaxPerDay, e.Raw.BlockNumber, now))

	case events.TargetAllowlistUpdated:
		return i.store.UpsertPolicy(store.TargetAllowlistPolicy(e.Account, e.Target, e.Allowed, e.Raw.BlockNumber, now))

	case events.FunctionAllowlistUpdated:
		return i.store.UpsertPolicy(store.FunctionAllowlistPolicy(e.Account, e.Target, e.Selector, e.Allowed, e.Raw.BlockNumber, now))

	case events.SpendRecorded:
		// Informational; the tx digest already records it.
		return nil

	case events.AttestationSubmitted:
		return i.store.UpsertAttestation(&store.AttestationRecord{
			AttestationID: e.ID.String(),
			Attester:      e.Attester,
			SchemaHash:    e.Schema,
			Subject:       e.Subject,
			BlockNumber:   e.Raw.BlockNumber,
			UpdatedAt:     now.Unix(),
		})

	case events.AttestationRevoked:
		return i.store.RevokeAttestation(e.ID.String(), e.Raw.BlockNumber, now)

	default:
		return fmt.Errorf("no handler for event %s", ev.Name())
	}
}
