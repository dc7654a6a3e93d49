package storage

import "log/slog"

// Open selects a backend for dataDir once, at construction time: the
// SQLite backend when the platform can support it, the plain-file backend
// otherwise. Callers hold only the Store interface and never learn which
// one is active.
//
// The store is constructed once at process start and lives for the
// process lifetime.
func Open(dataDir string) (Store, error) {
	s, err := OpenSQLite(dataDir)
	if err == nil {
		return s, nil
	}
	slog.Warn("sqlite backend unavailable, falling back to file store", "error", err)

	fs, ferr := OpenFileStore(dataDir)
	if ferr != nil {
		// Report the fallback's failure; the sqlite error is already logged.
		return nil, ferr
	}
	return fs, nil
}
