package internal

import "context"

// Strategy is a single self-contained extraction technique. A strategy
// either returns at least one file that exists on disk, or an empty list
// (optionally with an error) to trigger fallback to the next strategy.
// Strategies must confine all writes to the given workspace.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, ref *PostReference, ws *Workspace) ([]string, error)
}

// SessionStore persists and restores authentication state keyed by
// account. It enforces no access policy; every strategy decides for
// itself whether to load, log in, or go anonymous.
type SessionStore interface {
	// Load returns the persisted session for the account, or nil when no
	// usable session exists. Corrupt on-disk data is discarded, never
	// surfaced as an error.
	Load(accountID string) (*Session, error)

	// Login performs the credential handshake and persists the resulting
	// session on success.
	Login(ctx context.Context, accountID, password string) (*Session, error)

	// Save overwrites the persisted representation for the session's account.
	Save(session *Session) error

	// Invalidate deletes the persisted session. Idempotent.
	Invalidate(accountID string) error
}

// WorkspaceManager allocates scratch directories for resolution attempts.
type WorkspaceManager interface {
	Create() (*Workspace, error)
}

// UsageStore records users and completed downloads for the bot layer.
type UsageStore interface {
	RecordUser(ctx context.Context, userID, username, firstName string) error
	RecordDownload(ctx context.Context, userID, postURL, filePath string) error
	UsageCount(ctx context.Context, userID string) (int64, error)
	Close() error
}

// RateLimiter controls bandwidth usage during media downloads
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	SetRate(bytesPerSecond int64)
}
