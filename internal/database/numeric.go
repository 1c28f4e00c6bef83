package database

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// DecimalFromNumeric converts a NUMERIC column to a decimal. NULL and
// unparseable values become zero.
func DecimalFromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NumericFromDecimal converts a decimal to a NUMERIC value at the given scale.
func NumericFromDecimal(d decimal.Decimal, scale int32) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(scale))
	return n
}

// Money converts an amount to a 2-dp NUMERIC.
func Money(d decimal.Decimal) pgtype.Numeric {
	return NumericFromDecimal(d, 2)
}

// Text wraps s as a nullable TEXT; the empty string is NULL.
func Text(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
