package config

import (
	"fmt"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/intentlabs/agentbook/internal/common"
	"github.com/intentlabs/agentbook/internal/logger"
)

// Config is the complete configuration for the agentbook engines.
type Config struct {
	// Chain contains the ledger RPC connection settings
	Chain ChainConfig `yaml:"chain" json:"chain" toml:"chain"`

	// Contracts holds the addresses of the watched contracts
	Contracts ContractsConfig `yaml:"contracts" json:"contracts" toml:"contracts"`

	// Ingest configures the ingestion engine
	Ingest IngestConfig `yaml:"ingest" json:"ingest" toml:"ingest"`

	// Solver configures the settlement engine; optional when only indexing
	Solver *SolverConfig `yaml:"solver,omitempty" json:"solver,omitempty" toml:"solver,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ChainConfig represents the ledger node connection configuration.
type ChainConfig struct {
	// RPCURL is the ledger RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// ChainID is the chain identifier, used for transaction signing and
	// the typed-data domain
	ChainID uint64 `yaml:"chain_id" json:"chain_id" toml:"chain_id"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ContractsConfig holds the watched contract addresses.
type ContractsConfig struct {
	AgentRegistry string `yaml:"agent_registry" json:"agent_registry" toml:"agent_registry"`
	IntentBook    string `yaml:"intent_book" json:"intent_book" toml:"intent_book"`
	PolicyModule  string `yaml:"policy_module" json:"policy_module" toml:"policy_module"`

	// AttestationRegistry is optional; when empty, attestation events are
	// not watched
	AttestationRegistry string `yaml:"attestation_registry,omitempty" json:"attestation_registry,omitempty" toml:"attestation_registry,omitempty"` //nolint:lll
}

// IngestConfig represents the configuration for the ingestion engine.
type IngestConfig struct {
	// PollInterval is the fixed sleep between poll cycles
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// StartBlock is the height to start ingesting from on a fresh database
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// DB contains database configuration for the reconstructed state store
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`
}

// SolverConfig represents the configuration for the settlement engine.
type SolverConfig struct {
	// PrivateKey is the hex-encoded solver signing key
	PrivateKey string `yaml:"private_key" json:"private_key" toml:"private_key"`

	// PollInterval is the fixed sleep between poll cycles
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// StartBlock is the height to start listening from. The string "latest"
	// (or empty) skips history and starts at the current head.
	StartBlock string `yaml:"start_block" json:"start_block" toml:"start_block"`
}

// SkipHistory reports whether the solver should seed its listener at the
// current head instead of an explicit height.
func (s *SolverConfig) SkipHistory() bool {
	return s.StartBlock == "" || strings.EqualFold(s.StartBlock, "latest")
}

// StartBlockNumber parses the explicit start height. Only meaningful when
// SkipHistory() is false.
func (s *SolverConfig) StartBlockNumber() (uint64, error) {
	return common.ParseUint64orHex(s.StartBlock)
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	// EnableForeignKeys defaults to false (zero value)
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components, see
	// common.AllComponents for the recognized names
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[normalize(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[normalize(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}
		if _, valid := logger.ValidLogLevels[normalize(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return normalize(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether the metrics HTTP endpoint is active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// ApplyDefaults sets default values across the whole configuration.
func (c *Config) ApplyDefaults() {
	if c.Ingest.PollInterval.Duration == 0 {
		c.Ingest.PollInterval = common.NewDuration(2 * time.Second) //nolint:mnd
	}
	c.Ingest.DB.ApplyDefaults()

	if c.Chain.Retry != nil {
		c.Chain.Retry.ApplyDefaults()
	}

	if c.Solver != nil && c.Solver.PollInterval.Duration == 0 {
		c.Solver.PollInterval = common.NewDuration(2 * time.Second) //nolint:mnd
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.ApplyDefaults()

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks the configuration for fatal startup errors.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url: is required")
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chain_id: is required")
	}

	if err := validateAddress("contracts.agent_registry", c.Contracts.AgentRegistry, true); err != nil {
		return err
	}
	if err := validateAddress("contracts.intent_book", c.Contracts.IntentBook, true); err != nil {
		return err
	}
	if err := validateAddress("contracts.policy_module", c.Contracts.PolicyModule, true); err != nil {
		return err
	}
	if err := validateAddress("contracts.attestation_registry", c.Contracts.AttestationRegistry, false); err != nil {
		return err
	}

	if c.Ingest.DB.Path == "" {
		return fmt.Errorf("ingest.db.path: is required")
	}

	if c.Solver != nil {
		if !c.Solver.SkipHistory() {
			if _, err := c.Solver.StartBlockNumber(); err != nil {
				return fmt.Errorf("solver.start_block: must be a height or \"latest\": %w", err)
			}
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateSolver checks the parts of the configuration only the settlement
// engine needs. Separated from Validate so an indexing-only deployment can
// omit the solver key.
func (c *Config) ValidateSolver() error {
	if c.Solver == nil {
		return fmt.Errorf("solver: section is required")
	}
	if strings.TrimSpace(c.Solver.PrivateKey) == "" {
		return fmt.Errorf("solver.private_key: is required")
	}
	return nil
}

func validateAddress(field, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s: is required", field)
		}
		return nil
	}
	if !ethcommon.IsHexAddress(value) {
		return fmt.Errorf("%s: %q is not a valid address", field, value)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
