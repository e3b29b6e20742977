package sqlite

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Memory is a private in-memory database. Every Open gets its own, which
// only lives as long as its single connection.
const Memory = "file::memory:"

// Dialector returns the SQLite dialector for a file path or Memory.
// File databases use WAL and wait on a busy writer instead of failing.
func Dialector(path string) gorm.Dialector {
	if path == Memory {
		return sqlite.Open(path)
	}
	return sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL")
}
