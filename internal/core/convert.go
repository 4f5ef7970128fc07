package core

// convert.go converts between CSV cells, record fields and pgx types.
//
// Optional CSV cells become pgtype.Text with Valid=false when empty, so the
// stores write NULL and JSON shows the link as absent. Record IDs are
// uuid.NullUUID in memory and pgtype.UUID on the wire to PostgreSQL.

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ToPgText converts a cell to pgtype.Text. An empty cell is absent. The
// value is otherwise kept verbatim; whitespace is not trimmed.
func ToPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgTrimmedText is ToPgText for hand-entered values: surrounding
// whitespace is dropped first, so a blank field is absent.
func ToPgTrimmedText(s string) pgtype.Text {
	return ToPgText(strings.TrimSpace(s))
}

// ToPgUUID converts a record ID for pgx. An unset ID stays invalid so the
// database default fills it in.
func ToPgUUID(id uuid.NullUUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id.UUID, Valid: id.Valid}
}

// FromPgUUID converts an ID read through pgx back to a record ID.
func FromPgUUID(u pgtype.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(u.Bytes), Valid: u.Valid}
}

// NewID returns a fresh random record ID.
func NewID() uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.New(), Valid: true}
}
