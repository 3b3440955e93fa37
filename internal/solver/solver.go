package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/intentlabs/agentbook/internal/config"
	"github.com/intentlabs/agentbook/internal/contracts"
	"github.com/intentlabs/agentbook/internal/intent"
	"github.com/intentlabs/agentbook/internal/logger"
	"github.com/intentlabs/agentbook/internal/rpc"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// Solver couples the submission listener to the settlement executor and
// drives them on a fixed interval.
type Solver struct {
	listener *Listener
	executor *Executor
	domain   intent.Domain
	cfg      *config.SolverConfig
	log      *logger.Logger
}

// New builds a solver from its configuration. The chain id is read from
// the endpoint so the fill signature always matches the network.
func New(ctx context.Context, client rpc.ChainClient, book *contracts.IntentBook, cfg *config.SolverConfig, log *logger.Logger) (*Solver, error) {
	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid solver private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	return &Solver{
		listener: NewListener(client, book.Address(), log),
		executor: NewExecutor(client, book, key, chainID, log),
		domain:   intent.DefaultDomain(chainID.Uint64(), book.Address()),
		cfg:      cfg,
		log:      log,
	}, nil
}

// Run seeds the listener and settles submissions until the context ends.
func (s *Solver) Run(ctx context.Context) error {
	var start *uint64
	if !s.cfg.SkipHistory() {
		block, err := s.cfg.StartBlockNumber()
		if err != nil {
			return fmt.Errorf("invalid solver start block: %w", err)
		}
		start = &block
	}
	if err := s.listener.Seed(ctx, start); err != nil {
		return fmt.Errorf("failed to seed listener: %w", err)
	}

	s.log.Infow("solver started",
		"address", s.executor.From(),
		"intent_book", s.executor.book.Address(),
		"typed_data_domain", fmt.Sprintf("%s/%s", s.domain.Name, s.domain.Version),
		"domain_separator", intent.DomainSeparator(s.domain).Hex(),
		"poll_interval", s.cfg.PollInterval.Duration,
	)

	ticker := time.NewTicker(s.cfg.PollInterval.Duration)
	defer ticker.Stop()

	for {
		for _, sub := range s.listener.Poll(ctx) {
			outcome := s.executor.ProcessIntent(ctx, sub.IntentID)
			if !outcome.Filled {
				s.log.Infof("intent %s not attempted: %s", sub.IntentID, outcome.Reason)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
