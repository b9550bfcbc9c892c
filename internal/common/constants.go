// Package common contains common constants and variables used across services
package common

import "time"

const (
	AppName = "swap-engine"

	// SessionHeader carries the client's quote session id. Quotes for a session are
	// last-input-wins; requests without one are not ordered.
	SessionHeader = "X-Session-ID"

	ShutdownTimeout = 10 * time.Second
)
