package database

import (
	"strings"
	"time"

	"github.com/tomyedwab/sqlbridge/engine"
)

// Options configures Open. The zero value opens a plain local database.
type Options struct {
	// AuthToken authenticates against a hosted primary. Ignored for plain
	// local databases.
	AuthToken string

	// SyncURL, when set, opens the path as an embedded replica of the
	// primary at this URL.
	SyncURL string

	// SyncPeriod starts background sync at this interval on a replica.
	SyncPeriod time.Duration

	// ReadYourWrites makes writes through a replica visible to subsequent
	// reads on the same handle before the next sync. Defaults to true.
	// The embedded replica store reads its own writes unconditionally, so
	// the opt-out is accepted and has no effect there.
	ReadYourWrites *bool

	// Offline opens a replica without starting background sync, for use
	// when the primary is unreachable. Reads and writes stay local until
	// an explicit Sync.
	Offline bool

	// Syncer drives replication for an embedded replica. The replication
	// transport is supplied by the caller; without one, a replica still
	// opens but Sync fails.
	Syncer engine.Syncer

	// EncryptionCipher names the cipher for encryption at rest. Only
	// "aes256cbc" is accepted.
	EncryptionCipher string

	// EncryptionKey enables encryption at rest on a local database.
	EncryptionKey string

	// BusyTimeout bounds how long writes wait on a storage lock.
	BusyTimeout time.Duration
}

const defaultCipher = "aes256cbc"

func (o Options) validate() error {
	if o.EncryptionCipher != "" && o.EncryptionCipher != defaultCipher {
		return &engine.Error{
			Message: "Invalid encryption cipher: " + o.EncryptionCipher,
			Code:    "SQLITE_INVALID_ENCRYPTION_CIPHER",
		}
	}
	return nil
}

// isRemotePath reports whether path names a hosted database rather than a
// local file.
func isRemotePath(path string) bool {
	return strings.HasPrefix(path, "libsql://") ||
		strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "https://")
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}
