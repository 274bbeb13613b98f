package watermark

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Cursor is a Gmail history id. The zero value means no cursor.
type Cursor uint64

func (c Cursor) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

func (c Cursor) IsZero() bool {
	return c == 0
}

// UnmarshalJSON accepts both the numeric and the quoted form, since Gmail
// push payloads and API responses disagree on the encoding.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*c = 0
		return nil
	}
	parsed, err := ParseCursor(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseCursor(s string) (Cursor, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid history id %q: %w", s, err)
	}
	return Cursor(v), nil
}

type WatermarkRepo interface {
	// Load returns false when no cursor has been persisted yet.
	Load(ctx context.Context) (Cursor, bool, error)
	Save(ctx context.Context, cursor Cursor) error
	Close() error
}
