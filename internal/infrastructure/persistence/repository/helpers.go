package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/mattn/go-sqlite3"
)

// Amounts are stored as integer minor units next to the aggregate's currency.

func money(minor int64, currency valueobject.Currency) (valueobject.Money, error) {
	return valueobject.NewMoneyFromMinor(minor, currency)
}

func nullMinor(m *valueobject.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.MinorUnits(), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}
