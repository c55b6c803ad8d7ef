package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// EncodeCursor returns the opaque cursor of the item at the given 1-based
// position.
func EncodeCursor(position int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(position)))
}

// DecodeCursor returns the position encoded in cursor. The empty cursor
// decodes to 0.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	b, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("pagination: malformed cursor %q: %w", cursor, err)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("pagination: malformed cursor %q", cursor)
	}
	return n, nil
}
