package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	id string
	at time.Time
}

func entryID(e entry) string      { return e.id }
func entryTime(e entry) time.Time { return e.at }

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	encoded := EncodeCursor("item-1", ts)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "item-1", decoded.LastID)
	assert.True(t, ts.Equal(decoded.Timestamp))

	assert.Equal(t, "", EncodeCursor("", ts))
	empty, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, raw := range []string{"%%%", "bm9waXBl", "aWR8bm90LWEtdGltZQ=="} {
		_, err := DecodeCursor(raw)
		assert.ErrorIs(t, err, ErrInvalidCursor, raw)
	}
}

func TestPaginate(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []entry{
		{"a", base},
		{"b", base},
		{"c", base.Add(time.Minute)},
		{"d", base.Add(2 * time.Minute)},
		{"e", base.Add(3 * time.Minute)},
	}

	first := Paginate(items, 2, nil, entryID, entryTime)
	assert.Equal(t, []entry{items[0], items[1]}, first.Items)
	require.True(t, first.HasMore)

	cursor, err := DecodeCursor(first.Cursor)
	require.NoError(t, err)
	second := Paginate(items, 2, cursor, entryID, entryTime)
	assert.Equal(t, []entry{items[2], items[3]}, second.Items)
	require.True(t, second.HasMore)

	cursor, err = DecodeCursor(second.Cursor)
	require.NoError(t, err)
	last := Paginate(items, 2, cursor, entryID, entryTime)
	assert.Equal(t, []entry{items[4]}, last.Items)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.Cursor)
}

func TestPaginate_ExactFit(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []entry{{"a", base}, {"b", base.Add(time.Second)}}

	page := Paginate(items, 2, nil, entryID, entryTime)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Cursor)
}
