// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package netcoreconfig holds the runtime tunables an embedding process
// may override: parse YAML, then apply defaults in Validate().
package netcoreconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tunables controls sizing knobs left to the embedder rather than
// hardcoding. The zero value is valid — Validate fills in every
// default — so a Runtime can start with no config file at all.
type Tunables struct {
	// WorkerCPUMultiplier sets the completion-dispatcher worker pool size
	// to WorkerCPUMultiplier x logical CPUs. Default 2.
	WorkerCPUMultiplier int `yaml:"worker_cpu_multiplier"`

	// AcceptBacklogMultiplier sets each listener's outstanding-accept
	// count to AcceptBacklogMultiplier x logical CPUs. Default 2.
	AcceptBacklogMultiplier int `yaml:"accept_backlog_multiplier"`

	// MaxStreamPayload caps a single stream message's payload size.
	// Default 16 MiB, matching the wire format's header field range.
	MaxStreamPayload int `yaml:"max_stream_payload"`

	// MaxDatagramPayload caps a single datagram's payload size. Default
	// 8 KiB.
	MaxDatagramPayload int `yaml:"max_datagram_payload"`

	// RecvBufferSize sizes the per-call read buffer for stream recv.
	// Default 64 KiB.
	RecvBufferSize int `yaml:"recv_buffer_size"`

	// DiagnosticsInterval controls how often the handle-table occupancy
	// snapshot is logged. Default 30s. A negative value is kept by
	// Validate and also results in the 30s interval; diagnostics cannot
	// be turned off through this field.
	DiagnosticsInterval time.Duration `yaml:"diagnostics_interval"`

	// LogLevel and LogFormat configure the default logger when the
	// embedder doesn't supply its own via WithLogger. Defaults "info"
	// and "json".
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadTunables reads and validates a YAML tunables file.
func LoadTunables(path string) (*Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading netcore config: %w", err)
	}
	var t Tunables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing netcore config: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validating netcore config: %w", err)
	}
	return &t, nil
}

// Validate applies every default to zero-valued fields and rejects
// negative worker and backlog multipliers; negative sizes and intervals
// are not rejected. Safe to call on a freshly zero-valued Tunables.
func (t *Tunables) Validate() error {
	if t.WorkerCPUMultiplier == 0 {
		t.WorkerCPUMultiplier = 2
	}
	if t.WorkerCPUMultiplier < 0 {
		return fmt.Errorf("worker_cpu_multiplier must be >= 0, got %d", t.WorkerCPUMultiplier)
	}
	if t.AcceptBacklogMultiplier == 0 {
		t.AcceptBacklogMultiplier = 2
	}
	if t.AcceptBacklogMultiplier < 0 {
		return fmt.Errorf("accept_backlog_multiplier must be >= 0, got %d", t.AcceptBacklogMultiplier)
	}
	if t.MaxStreamPayload == 0 {
		t.MaxStreamPayload = 16 * 1024 * 1024
	}
	if t.MaxDatagramPayload == 0 {
		t.MaxDatagramPayload = 8 * 1024
	}
	if t.RecvBufferSize == 0 {
		t.RecvBufferSize = 64 * 1024
	}
	if t.DiagnosticsInterval == 0 {
		t.DiagnosticsInterval = 30 * time.Second
	}
	if t.LogLevel == "" {
		t.LogLevel = "info"
	}
	if t.LogFormat == "" {
		t.LogFormat = "json"
	}
	return nil
}
