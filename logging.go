// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netcore

import (
	"log/slog"

	"github.com/coreio/netcore/internal/logging"
)

func newDefaultLogger(level, format string) *slog.Logger {
	return logging.New(level, format, nil)
}
