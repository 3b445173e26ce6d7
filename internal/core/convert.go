package core

// convert.go maps between domain values and pgtype values.
//
// Empty strings and zero ints are written as NULL, and NULLs read back as
// the zero value, so domain types never carry pgtype wrappers.

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgInt4 converts an int to pgtype.Int4. Zero is stored as NULL.
func ToPgInt4(i int) pgtype.Int4 {
	if i == 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

// ToPgUUID parses s into pgtype.UUID; invalid input yields NULL.
func ToPgUUID(s string) pgtype.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: u, Valid: true}
}

// PgUUIDToString formats a pgtype.UUID, returning "" for NULL.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// FromPgText returns the string or "" for NULL.
func FromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// FromPgInt4 returns the value or 0 for NULL.
func FromPgInt4(i pgtype.Int4) int {
	if !i.Valid {
		return 0
	}
	return int(i.Int32)
}

// encodeList renders a list for a jsonb column. A nil list becomes NULL
// unless emptyArray is set, in which case it becomes [].
func encodeList(list []string, emptyArray bool) ([]byte, error) {
	if list == nil {
		if !emptyArray {
			return nil, nil
		}
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return b, nil
}

// decodeList parses a jsonb array. NULL and empty input return nil.
func decodeList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return list, nil
}
