// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package resource

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Diagnostics runs a low-frequency cron job that logs handle table
// occupancy at Debug, wrapping cron.Cron with a slog-backed logger for
// its own periodic runs.
type Diagnostics struct {
	cron *cron.Cron
	mgr  *Manager
}

// NewDiagnostics registers the periodic snapshot job without starting
// it; call Start to begin running. interval <= 0 falls back to 30s.
func NewDiagnostics(mgr *Manager, logger *slog.Logger, interval time.Duration) (*Diagnostics, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		snap := mgr.Snapshot()
		logger.Debug("resource manager snapshot",
			"tcp_handles", snap.TCPHandles,
			"udp_handles", snap.UDPHandles,
			"listeners", snap.ListenersTracked,
			"outstanding_accepts", snap.OutstandingAccept,
		)
	}); err != nil {
		return nil, fmt.Errorf("registering diagnostics job: %w", err)
	}
	return &Diagnostics{cron: c, mgr: mgr}, nil
}

// Start begins running the diagnostics job in its own goroutine.
func (d *Diagnostics) Start() {
	d.cron.Start()
}

// Stop cancels the diagnostics job and waits for any in-flight run to
// finish.
func (d *Diagnostics) Stop() {
	<-d.cron.Stop().Done()
}
