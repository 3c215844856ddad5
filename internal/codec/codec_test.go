package codec

import "testing"

func TestDecodeOrderType(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"M", "MKT"},
		{"m", "MKT"},
		{"L", "LMT"},
		{"l", "LMT"},
		{"SL", "SL-LMT"},
		{"sl", "SL-LMT"},
		{"SL-M", "SL-MKT"},
		{"sl-m", "SL-MKT"},
		{"Sl-M", "SL-MKT"},
		{"bracket", "bracket"},
		{"MKT", "MKT"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DecodeOrderType(tt.in); got != tt.want {
			t.Errorf("DecodeOrderType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeProduct(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"NRML", "M"},
		{"nrml", "M"},
		{"MIS", "I"},
		{"mis", "I"},
		{"CNC", "C"},
		{"Cnc", "C"},
		{"bo", "bo"},
		{"M", "M"},
	}
	for _, tt := range tests {
		if got := DecodeProduct(tt.in); got != tt.want {
			t.Errorf("DecodeProduct(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, alias := range []string{"M", "L", "SL", "SL-M"} {
		if got := EncodeOrderType(DecodeOrderType(alias)); got != alias {
			t.Errorf("EncodeOrderType(DecodeOrderType(%q)) = %q", alias, got)
		}
	}
	for _, alias := range []string{"NRML", "MIS", "CNC"} {
		if got := EncodeProduct(DecodeProduct(alias)); got != alias {
			t.Errorf("EncodeProduct(DecodeProduct(%q)) = %q", alias, got)
		}
	}
	if got := EncodeProduct("X"); got != "X" {
		t.Errorf("EncodeProduct(%q) = %q, want passthrough", "X", got)
	}
}

func TestOrderTypeClasses(t *testing.T) {
	if !IsStopLoss(OrderTypeStopLossLimit) || !IsStopLoss(OrderTypeStopLossMarket) {
		t.Error("stop-loss order types not recognised")
	}
	if IsStopLoss(OrderTypeLimit) || IsStopLoss(OrderTypeMarket) {
		t.Error("non stop-loss order type reported as stop-loss")
	}
	if !IsPriced(OrderTypeLimit) || !IsPriced(OrderTypeStopLossLimit) {
		t.Error("priced order types not recognised")
	}
	if IsPriced(OrderTypeMarket) || IsPriced(OrderTypeStopLossMarket) {
		t.Error("market order type reported as priced")
	}
}
