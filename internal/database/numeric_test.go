package database

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func TestMoneyRoundTrip(t *testing.T) {
	tests := []string{"0", "1980", "2297.00", "33.34", "0.5"}
	for _, s := range tests {
		want := decimal.RequireFromString(s)
		got := DecimalFromNumeric(Money(want))
		if !got.Equal(want) {
			t.Errorf("Money(%s) round trip = %s", s, got)
		}
	}
}

func TestDecimalFromNumeric_Null(t *testing.T) {
	if got := DecimalFromNumeric(pgtype.Numeric{}); !got.IsZero() {
		t.Errorf("expected zero for NULL numeric, got %s", got)
	}
}

func TestText(t *testing.T) {
	if Text("").Valid {
		t.Error("expected empty string to be NULL")
	}
	if v := Text("table 4"); !v.Valid || v.String != "table 4" {
		t.Errorf("unexpected text %+v", v)
	}
}
