// Package latency holds the timing and resource configuration of the
// out-of-order back end.
package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds execution latencies and resource pool sizes.
// Values are loaded from JSON; zero-valued fields fall back to defaults
// at Validate time only in the sense that DefaultConfig is the base for
// LoadConfig.
type Config struct {
	// ALULatency is the execution latency of integer ALU operations.
	// Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the execution latency of conditional branches.
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// LoadLatency is the execution latency of loads. Default: 2 cycles.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the execution latency of stores. Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency"`

	// ALUUnits, BranchUnits, LoadUnits, and StoreUnits size the typed
	// execution-unit pools. Defaults: 2, 1, 1, 1.
	ALUUnits    int `json:"alu_units"`
	BranchUnits int `json:"branch_units"`
	LoadUnits   int `json:"load_units"`
	StoreUnits  int `json:"store_units"`

	// RSEntries is the reservation station capacity. Default: 16.
	RSEntries int `json:"rs_entries"`

	// ROBEntries is the reorder buffer capacity. Default: 32.
	ROBEntries int `json:"rob_entries"`

	// FetchBufferDepth bounds the fetch buffer. Default: 4.
	FetchBufferDepth int `json:"fetch_buffer_depth"`
}

// DefaultConfig returns a Config with the default pipeline parameters.
func DefaultConfig() *Config {
	return &Config{
		ALULatency:       1,
		BranchLatency:    1,
		LoadLatency:      2,
		StoreLatency:     1,
		ALUUnits:         2,
		BranchUnits:      1,
		LoadUnits:        1,
		StoreUnits:       1,
		RSEntries:        16,
		ROBEntries:       32,
		FetchBufferDepth: 4,
	}
}

// LoadConfig loads a Config from a JSON file. Fields absent from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that latencies and pool sizes are usable.
func (c *Config) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.LoadLatency == 0 {
		return fmt.Errorf("load_latency must be > 0")
	}
	if c.StoreLatency == 0 {
		return fmt.Errorf("store_latency must be > 0")
	}
	if c.ALUUnits <= 0 || c.BranchUnits <= 0 || c.LoadUnits <= 0 || c.StoreUnits <= 0 {
		return fmt.Errorf("every execution-unit pool must have at least one unit")
	}
	if c.RSEntries <= 0 {
		return fmt.Errorf("rs_entries must be > 0")
	}
	if c.ROBEntries <= 0 {
		return fmt.Errorf("rob_entries must be > 0")
	}
	if c.FetchBufferDepth <= 0 {
		return fmt.Errorf("fetch_buffer_depth must be > 0")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
