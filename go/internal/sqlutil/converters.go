package sqlutil

import "database/sql"

// Helper functions for converting between Go types and sql.Null* types

// ToNullFloat64 converts a Go float pointer to sql.NullFloat64
func ToNullFloat64(val *float64) sql.NullFloat64 {
	if val == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *val, Valid: true}
}

// FromNullFloat64 converts sql.NullFloat64 to a Go float pointer
func FromNullFloat64(val sql.NullFloat64) *float64 {
	if !val.Valid {
		return nil
	}
	v := val.Float64
	return &v
}
