// Package lifecycle holds process-wide lifecycle settings.
package lifecycle

import "time"

// DefaultTimeout bounds start-up checks and graceful shutdown hooks.
const DefaultTimeout = 10 * time.Second
