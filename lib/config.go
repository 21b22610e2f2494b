package lib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/units"
)

/* User controlled configuration for each module of the node */

const (
	// FILE NAMES in the 'data directory'
	ConfigFilePath  = "config.json"        // the node configuration
	ValKeyPath      = "validator_key.json" // the node's consensus private key
	GenesisFilePath = "genesis.json"       // the genesis document
)

// Config is the structure of the user configuration options for a node
type Config struct {
	MainConfig      // options spanning all modules
	ConsensusConfig // slot, epoch and authorship options
	FinalityConfig  // finality round options
	ChainConfig     // import queue and orphan pool options
	MempoolConfig   // transaction pool options
	StoreConfig     // persistence options
	MetricsConfig   // telemetry options
}

// DefaultConfig() returns a Config with developer set options
func DefaultConfig() Config {
	return Config{
		MainConfig:      DefaultMainConfig(),
		ConsensusConfig: DefaultConsensusConfig(),
		FinalityConfig:  DefaultFinalityConfig(),
		ChainConfig:     DefaultChainConfig(),
		MempoolConfig:   DefaultMempoolConfig(),
		StoreConfig:     DefaultStoreConfig(),
		MetricsConfig:   DefaultMetricsConfig(),
	}
}

// Validate() enforces the startup invariants. A violation here is fatal before
// any slot or round activity begins; nothing else in normal operation is.
func (c *Config) Validate() ErrorI {
	if c.SlotTimeMS <= 0 {
		return ErrInvalidSlotDuration()
	}
	if c.EpochLengthSlots == 0 {
		return ErrInvalidEpochLength()
	}
	if c.EpochLookaheadSlots >= c.EpochLengthSlots {
		return ErrInvalidConfig("epoch lookahead must be smaller than the epoch length")
	}
	if c.ExpectedLeadersPerSlot == 0 {
		return ErrInvalidConfig("expected leaders per slot must be positive")
	}
	if c.MaxBlockTxs == 0 {
		return ErrInvalidConfig("max block transactions must be positive")
	}
	if c.RoundTimeoutMS <= 0 || c.MaxRoundTimeoutMS < c.RoundTimeoutMS {
		return ErrInvalidConfig("round timeouts must be positive and the cap at least the base")
	}
	if c.RoundTimeoutMultiplier < 1 {
		return ErrInvalidConfig("round timeout multiplier must be at least 1")
	}
	if c.MaxOrphanBlocks == 0 || c.OrphanRetentionMS <= 0 {
		return ErrInvalidConfig("orphan pool limits must be positive")
	}
	return nil
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel string `json:"logLevel"` // any level includes the levels above it: debug < info < warn < error
	ChainId  uint64 `json:"chainId"`  // the identifier of this particular chain
}

// DefaultMainConfig() sets log level to 'info'
func DefaultMainConfig() MainConfig {
	return MainConfig{
		LogLevel: "info",
		ChainId:  1,
	}
}

// GetLogLevel() parses the log string in the config file into a LogLevel enum
func (m *MainConfig) GetLogLevel() int32 {
	switch {
	case strings.Contains(strings.ToLower(m.LogLevel), "deb"):
		return DebugLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "inf"):
		return InfoLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "war"):
		return WarnLevel
	case strings.Contains(strings.ToLower(m.LogLevel), "err"):
		return ErrorLevel
	default:
		return DebugLevel
	}
}

// CONSENSUS CONFIG BELOW

// ConsensusConfig defines the slot cadence, epoch geometry and authorship limits
type ConsensusConfig struct {
	SlotTimeMS             int    `json:"slotTimeMS"`             // the fixed duration of a slot in milliseconds
	EpochLengthSlots       uint64 `json:"epochLengthSlots"`       // the number of slots sharing one validator set snapshot
	EpochLookaheadSlots    uint64 `json:"epochLookaheadSlots"`    // how many slots before the boundary the next epoch is derived
	ExpectedLeadersPerSlot uint64 `json:"expectedLeadersPerSlot"` // the election threshold target; more than one winner per slot is legal
	MaxBlockTxs            int    `json:"maxBlockTxs"`            // the maximum transactions pulled from the pool per block
	PoolFetchTimeoutMS     int    `json:"poolFetchTimeoutMS"`     // the bounded time authorship waits on the transaction pool
}

// DefaultConsensusConfig() configures the slot and epoch cadence
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		SlotTimeMS:             6000, // 6 second slots
		EpochLengthSlots:       600,  // one hour epochs at the default slot time
		EpochLookaheadSlots:    60,   // derive the next epoch 60 slots ahead of the boundary
		ExpectedLeadersPerSlot: 1,    // target one primary winner per slot
		MaxBlockTxs:            1000, // cap the block body
		PoolFetchTimeoutMS:     500,  // half a second to pull from the pool
	}
}

// FINALITY CONFIG BELOW

// FinalityConfig defines the finality round timeout curve.
// A stalled round restarts with a larger timeout to tolerate transient partition;
// the curve is configuration, not a constant, to allow tuning for network latency.
type FinalityConfig struct {
	RoundTimeoutMS         int     `json:"roundTimeoutMS"`         // the base round timeout in milliseconds
	MaxRoundTimeoutMS      int     `json:"maxRoundTimeoutMS"`      // the cap of the timeout escalation
	RoundTimeoutMultiplier float64 `json:"roundTimeoutMultiplier"` // the growth factor applied per stalled round
}

// DefaultFinalityConfig() configures the round backoff curve
func DefaultFinalityConfig() FinalityConfig {
	return FinalityConfig{
		RoundTimeoutMS:         6000,
		MaxRoundTimeoutMS:      60000,
		RoundTimeoutMultiplier: 1.5,
	}
}

// CHAIN CONFIG BELOW

// ChainConfig bounds the orphan block pool
type ChainConfig struct {
	MaxOrphanBlocks   int `json:"maxOrphanBlocks"`   // the maximum blocks held while waiting for a parent
	OrphanRetentionMS int `json:"orphanRetentionMS"` // how long an orphan is retained before being dropped
}

// DefaultChainConfig() bounds orphan retention to a few slots
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		MaxOrphanBlocks:   512,
		OrphanRetentionMS: 60000,
	}
}

// MEMPOOL CONFIG BELOW

// MempoolConfig is the user configuration of the unconfirmed transaction pool
type MempoolConfig struct {
	MaxTotalBytes       uint64 `json:"maxTotalBytes"`       // maximum collective bytes in the pool
	MaxTransactionCount uint32 `json:"maxTransactionCount"` // max number of transactions
	IndividualMaxTxSize uint32 `json:"individualMaxTxSize"` // max bytes of a single transaction
	DropPercentage      int    `json:"dropPercentage"`      // percentage dropped from the bottom of the queue if limits are reached
}

// DefaultMempoolConfig() returns the developer created mempool options
func DefaultMempoolConfig() MempoolConfig {
	return MempoolConfig{
		MaxTotalBytes:       uint64(10 * units.MB),
		IndividualMaxTxSize: uint32(4 * units.Kilobyte),
		MaxTransactionCount: 5000,
		DropPercentage:      35,
	}
}

// STORE CONFIG BELOW

// StoreConfig is the user configuration for the finalized block store
type StoreConfig struct {
	DataDirPath string `json:"dataDirPath"` // path of the folder where the node stores its data
	DBName      string `json:"dbName"`      // name of the database
	InMemory    bool   `json:"inMemory"`    // non-disk database, only for testing
}

// DefaultDataDirPath() is $USERHOME/.chain
func DefaultDataDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".chain")
}

// DefaultStoreConfig() returns the developer recommended store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DataDirPath: DefaultDataDirPath(),
		DBName:      "chain",
		InMemory:    false,
	}
}

// METRICS CONFIG BELOW

// MetricsConfig represents the configuration for the metrics server
type MetricsConfig struct {
	Enabled           bool   `json:"enabled"`           // if the metrics are enabled
	PrometheusAddress string `json:"prometheusAddress"` // the listen address of the server
}

// DefaultMetricsConfig() returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:           false,
		PrometheusAddress: "0.0.0.0:9090",
	}
}

// WriteToFile() saves the Config object to a JSON file
func (c Config) WriteToFile(filePath string) error {
	jsonBytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, jsonBytes, os.ModePerm)
}

// NewConfigFromFile() populates a Config object from a JSON file, filling any
// blanks with the defaults
func NewConfigFromFile(filePath string) (Config, error) {
	fileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	c := DefaultConfig()
	if err = json.Unmarshal(fileBytes, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
