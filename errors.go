// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netcore

import "errors"

// ErrNotStarted is returned by any Runtime method called after Shutdown.
var ErrNotStarted = errors.New("netcore: runtime not started")
