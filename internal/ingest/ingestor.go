package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/intentlabs/agentbook/internal/contracts"
	"github.com/intentlabs/agentbook/internal/events"
	"github.com/intentlabs/agentbook/internal/logger"
	"github.com/intentlabs/agentbook/internal/metrics"
	"github.com/intentlabs/agentbook/internal/rpc"
	"github.com/intentlabs/agentbook/internal/store"
)

// Config carries the ingestion engine's tunables.
type Config struct {
	// PollInterval is the fixed wait between poll cycles.
	PollInterval time.Duration

	// StartBlock is the first block to ingest when no checkpoint exists.
	StartBlock uint64
}

// Ingestor polls the chain for ledger events and projects them into the
// state store. One cycle reads the head, fetches logs per watched
// contract for the open range, replays them in chain order, and advances
// the checkpoint only when every handler succeeded.
type Ingestor struct {
	client   rpc.ChainClient
	decoder  *events.Decoder
	store    *store.Store
	registry *contracts.AgentRegistry
	book     *contracts.IntentBook
	cfg      Config
	log      *logger.Logger

	now func() time.Time
}

func New(
	client rpc.ChainClient,
	decoder *events.Decoder,
	st *store.Store,
	registry *contracts.AgentRegistry,
	book *contracts.IntentBook,
	cfg Config,
	log *logger.Logger,
) *Ingestor {
	return &Ingestor{
		client:   client,
		decoder:  decoder,
		store:    st,
		registry: registry,
		book:     book,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Run polls until the context ends. The checkpoint is threaded through
// Poll explicitly; a failed cycle leaves it where it was and the next
// cycle retries the same range.
func (i *Ingestor) Run(ctx context.Context) error {
	last, err := i.resolveStart()
	if err != nil {
		return err
	}

	i.log.Infow("ingestion started",
		"contracts", i.decoder.Watched(),
		"from_block", last+1,
		"poll_interval", i.cfg.PollInterval,
	)

	ticker := time.NewTicker(i.cfg.PollInterval)
	defer ticker.Stop()

	for {
		newLast, n, err := i.Poll(ctx, last)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			metrics.PollCycleInc("error")
			i.log.Errorf("poll cycle failed at checkpoint %d: %v", last, err)
		default:
			metrics.PollCycleInc("ok")
			if n > 0 {
				i.log.Infof("processed %d events up to block %d", n, newLast)
			}
			last = newLast
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// resolveStart picks the initial checkpoint: the persisted one when
// present, otherwise one block before the configured start.
func (i *Ingestor) resolveStart() (uint64, error) {
	last, found, err := i.store.LastProcessedBlock()
	if err != nil {
		return 0, err
	}
	if found {
		return last, nil
	}
	if i.cfg.StartBlock > 0 {
		return i.cfg.StartBlock - 1, nil
	}
	return 0, nil
}

// Poll runs one ingestion cycle over (last, head]. It returns the new
// checkpoint, the number of events handled, and an error. On any error
// the returned checkpoint equals last, so the caller retries the whole
// range; every write is idempotent, so replays converge.
func (i *Ingestor) Poll(ctx context.Context, last uint64) (uint64, int, error) {
	head, err := i.client.BlockNumber(ctx)
	if err != nil {
		return last, 0, fmt.Errorf("failed to read chain head: %w", err)
	}
	if head <= last {
		return last, 0, nil
	}

	start := time.Now()
	from, to := last+1, head

	var batch []types.Log
	for _, addr := range i.decoder.Watched() {
		logs, err := i.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{addr},
		})
		if err != nil {
			return last, 0, fmt.Errorf("failed to fetch logs for %s in [%d, %d]: %w", addr, from, to, err)
		}
		batch = append(batch, logs...)
	}

	// Per-contract fetches arrive in arbitrary order; replay in chain
	// order so cross-contract effects apply the way they happened.
	sort.SliceStable(batch, func(a, b int) bool {
		if batch[a].BlockNumber != batch[b].BlockNumber {
			return batch[a].BlockNumber < batch[b].BlockNumber
		}
		return batch[a].Index < batch[b].Index
	})

	processed := 0
	for _, lg := range batch {
		ev, err := i.decoder.Decode(lg)
		if err != nil {
			if errors.Is(err, events.ErrUnknownEvent) {
				metrics.UnknownLogs.Inc()
				i.log.Debugf("skipping log: %v", err)
			} else {
				metrics.DecodeFailures.Inc()
				i.log.Warnf("skipping malformed log in tx %s: %v", lg.TxHash, err)
			}
			continue
		}

		if err := i.handle(ctx, ev); err != nil {
			metrics.HandlerErrorInc(ev.Name())
			return last, processed, fmt.Errorf("%s handler failed at block %d: %w", ev.Name(), lg.BlockNumber, err)
		}
		processed++
		metrics.LogIngestedInc(ev.Name())

		// The tx digest is best-effort: a failed append never fails the
		// cycle.
		summary := store.TxEvent{Name: ev.Name(), Args: ev.Args()}
		if err := i.store.AppendTxEvents(lg.TxHash, lg.BlockNumber, lg.Address, []store.TxEvent{summary}); err != nil {
			i.log.Warnf("failed to append tx digest for %s: %v", lg.TxHash, err)
		}
	}

	if err := i.store.SetLastProcessedBlock(to, i.now()); err != nil {
		return last, processed, err
	}
	metrics.CheckpointSet(to)
	metrics.BatchProcessingTime.Observe(time.Since(start).Seconds())

	return to, processed, nil
}
