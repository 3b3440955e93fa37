package solver

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/intentlabs/agentbook/internal/events"
	"github.com/intentlabs/agentbook/internal/logger"
	"github.com/intentlabs/agentbook/internal/rpc"
)

// Listener watches the intent book for IntentSubmitted events. Its
// position is held in memory only and advances every cycle regardless of
// what happened in it: a restart or a failed fetch can drop intents, and
// the ingestion engine is the durable record. The listener only feeds the
// executor candidates.
type Listener struct {
	client  rpc.ChainClient
	book    common.Address
	decoder *events.Decoder
	log     *logger.Logger

	next   uint64
	seeded bool
}

func NewListener(client rpc.ChainClient, book common.Address, log *logger.Logger) *Listener {
	return &Listener{
		client:  client,
		book:    book,
		decoder: events.NewDecoder(map[common.Address]events.Schema{book: events.SchemaIntentBook}),
		log:     log,
	}
}

// Seed positions the listener. A nil start means the current head: only
// intents submitted after startup are considered.
func (l *Listener) Seed(ctx context.Context, start *uint64) error {
	if start != nil {
		l.next = *start
		l.seeded = true
		return nil
	}

	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	l.next = head + 1
	l.seeded = true
	return nil
}

// Poll returns the IntentSubmitted events since the previous cycle.
// Failures yield an empty batch, never an error: the pointer still moves
// past any range whose head was observed.
func (l *Listener) Poll(ctx context.Context) []events.IntentSubmitted {
	if !l.seeded {
		l.log.Warnf("listener polled before seeding")
		return nil
	}

	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		l.log.Warnf("failed to read chain head: %v", err)
		return nil
	}
	if head < l.next {
		return nil
	}

	from, to := l.next, head
	l.next = head + 1

	logs, err := l.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{l.book},
		Topics:    [][]common.Hash{{events.TopicIntentSubmitted}},
	})
	if err != nil {
		l.log.Warnf("failed to fetch intent submissions in [%d, %d]: %v", from, to, err)
		return nil
	}

	var batch []events.IntentSubmitted
	for _, lg := range logs {
		ev, err := l.decoder.Decode(lg)
		if err != nil {
			l.log.Warnf("skipping submission log in tx %s: %v", lg.TxHash, err)
			continue
		}
		if sub, ok := ev.(events.IntentSubmitted); ok {
			batch = append(batch, sub)
		}
	}
	return batch
}
