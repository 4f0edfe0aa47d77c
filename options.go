// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netcore

import (
	"log/slog"

	"github.com/coreio/netcore/netcoreconfig"
)

// Option configures a Runtime at Startup.
type Option func(*startConfig)

type startConfig struct {
	logger   *slog.Logger
	tunables *netcoreconfig.Tunables
}

// WithLogger overrides the default stderr/JSON logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *startConfig) { c.logger = logger }
}

// WithTunables overrides the zero-value (auto-detected) runtime
// tunables loaded via netcoreconfig.
func WithTunables(t *netcoreconfig.Tunables) Option {
	return func(c *startConfig) { c.tunables = t }
}
