package ranking

import (
	"bytes"

	"github.com/google/uuid"
)

// Key orders items: Primary desc, then CreatedAt desc, then ID desc.
// Distinct IDs never compare equal, so the order is total.
type Key struct {
	Primary   float64   `json:"p"`
	CreatedAt int64     `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// Compare returns -1 if a ranks before b, 1 if after, 0 if same item.
func Compare(a, b Key) int {
	switch {
	case a.Primary > b.Primary:
		return -1
	case a.Primary < b.Primary:
		return 1
	}

	switch {
	case a.CreatedAt > b.CreatedAt:
		return -1
	case a.CreatedAt < b.CreatedAt:
		return 1
	}

	return -bytes.Compare(a.ID[:], b.ID[:])
}

// After reports whether k ranks strictly after cursor.
func After(k, cursor Key) bool {
	return Compare(k, cursor) > 0
}
