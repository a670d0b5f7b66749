// Package latency provides the timing configuration for the vector core:
// register write latency, memory latency, and pipeline stage buffering.
package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the configurable latencies of the core.
type Config struct {
	// VRegWriteLatency is the depth of each unit's delayed write queue in
	// cycles: a sub-register write enqueued in cycle t reaches the
	// register file in cycle t+N. The write hazard for a group clears
	// when the group's last write drains, so this value is the external
	// latency contract between the units and the register file, not an
	// architectural constant. Default: 2 cycles.
	VRegWriteLatency int `json:"vreg_write_latency"`

	// MemLatency is the request-to-response latency of the memory port in
	// cycles. Multiple requests may be in flight. Default: 4 cycles.
	MemLatency int `json:"mem_latency"`

	// MemWidthBits is the width of the memory data port. Default: 32.
	MemWidthBits int `json:"mem_width_bits"`

	// VLenBits is the vector register width. Default: 128.
	VLenBits int `json:"vlen_bits"`

	// StageBuffer inserts one extra register stage in each execution
	// unit's transform pipeline. Default: false (combinational stage).
	StageBuffer bool `json:"stage_buffer"`
}

// DefaultConfig returns the default timing configuration.
func DefaultConfig() *Config {
	return &Config{
		VRegWriteLatency: 2,
		MemLatency:       4,
		MemWidthBits:     32,
		VLenBits:         128,
	}
}

// LoadConfig loads a Config from a JSON file. Missing fields keep their
// default values.
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

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.VRegWriteLatency < 1 {
		return fmt.Errorf("vreg_write_latency must be >= 1")
	}
	if c.MemLatency < 1 {
		return fmt.Errorf("mem_latency must be >= 1")
	}
	switch c.MemWidthBits {
	case 32, 64:
	default:
		return fmt.Errorf("mem_width_bits must be 32 or 64")
	}
	if c.VLenBits < 32 || c.VLenBits > 512 || c.VLenBits%32 != 0 {
		return fmt.Errorf("vlen_bits must be a multiple of 32 between 32 and 512")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
