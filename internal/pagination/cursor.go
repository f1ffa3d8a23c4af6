package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Cursor represents a decoded pagination cursor
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor creates a base64-encoded cursor from the last item ID and timestamp
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a base64-encoded cursor and returns the last ID and timestamp
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:    parts[0],
		Timestamp: timestamp,
	}, nil
}

// After reports whether an item keyed by (id, timestamp) sorts after the
// cursor position. Items are ordered by timestamp, then id.
func (c *Cursor) After(id string, timestamp time.Time) bool {
	if c == nil {
		return true
	}
	if !timestamp.Equal(c.Timestamp) {
		return timestamp.After(c.Timestamp)
	}
	return id > c.LastID
}

// Paginate returns one page of items, which must already be ordered by
// timestamp then id. It fetches limit+1 to decide HasMore.
func Paginate[T any](items []T, limit int, cursor *Cursor, getID func(T) string, getTimestamp func(T) time.Time) PageResult[T] {
	page := make([]T, 0, limit)
	hasMore := false
	for _, item := range items {
		if !cursor.After(getID(item), getTimestamp(item)) {
			continue
		}
		if len(page) == limit {
			hasMore = true
			break
		}
		page = append(page, item)
	}

	result := PageResult[T]{Items: page, HasMore: hasMore}
	if hasMore {
		last := page[len(page)-1]
		result.Cursor = EncodeCursor(getID(last), getTimestamp(last))
	}
	return result
}
