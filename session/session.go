// Package session carries the identity the CLI presents to LLM backends:
// an originator tag, the CLI version and a per-process session identifier.
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Origin identifies this tool in the originator request header.
const Origin = "llmbridge"

// Version is the CLI version. Overridden at build time with
// -ldflags "-X github.com/richinex/llmbridge/session.Version=...".
var Version = "0.1.0"

// Header names sent with every backend request.
const (
	HeaderOriginator = "originator"
	HeaderVersion    = "version"
	HeaderSessionID  = "session_id"
)

var (
	mu sync.RWMutex
	id string
)

// SetID records the session identifier for the current process.
func SetID(sessionID string) {
	mu.Lock()
	defer mu.Unlock()
	id = strings.TrimSpace(sessionID)
}

// ID returns the session identifier, or "" when none was set.
func ID() string {
	mu.RLock()
	defer mu.RUnlock()
	return id
}

// Headers returns the default request headers. When no session id has been
// set, a fresh identifier with its dashes stripped is used.
func Headers() map[string]string {
	sessionID := ID()
	if sessionID == "" {
		sessionID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return map[string]string{
		HeaderOriginator: Origin,
		HeaderVersion:    Version,
		HeaderSessionID:  sessionID,
	}
}
