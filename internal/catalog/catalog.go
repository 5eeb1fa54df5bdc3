package catalog

import (
	"errors"
	"time"
)

var (
	// ErrEmptyCatalog means there are no rows to select from.
	ErrEmptyCatalog = errors.New("catalog is empty")
	// ErrNotFound means a referenced entry does not exist. Under correct use
	// this signals data corruption, not a user mistake.
	ErrNotFound = errors.New("entry not found")
	// ErrDuplicate means an entry with the same normalized key already exists.
	ErrDuplicate = errors.New("entry already exists")
)

// Entry is one catalog row.
type Entry struct {
	ID            int64
	DisplayName   string
	NormalizedKey string
	UsageCount    int64
	CreatedAt     time.Time
}

// Order selects the ListAll ordering.
type Order int

const (
	// OrderByID lists entries by insertion id, ascending.
	OrderByID Order = iota
	// OrderByNewest lists entries by creation time, newest first.
	OrderByNewest
)

// SelfID is the designated "self" identity: the first seeded row.
const SelfID int64 = 1
