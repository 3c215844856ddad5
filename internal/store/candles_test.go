package store

import (
	"testing"
	"time"

	"finvasia/pkg/finvasia"
)

func TestCandleRecords(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	candles := []finvasia.Candle{
		{Time: "10-01-2024 09:15:00", Open: 1500, High: 1510, Low: 1495, Close: 1505, Volume: "1200"},
		{Time: "10-01-2024 09:16:00", Open: 1505, High: 1506, Low: 1501, Close: 1502, Volume: ""},
	}
	got, err := CandleRecords("nse", "1594", candles, ist)
	if err != nil {
		t.Fatalf("CandleRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	want := time.Date(2024, 1, 10, 3, 45, 0, 0, time.UTC).UnixMilli()
	if got[0].Timestamp != want {
		t.Errorf("Timestamp = %d, want %d", got[0].Timestamp, want)
	}
	if got[0].Exchange != "NSE" || got[0].Token != "1594" || got[0].Volume != 1200 || got[0].Close != 1505 {
		t.Errorf("record = %+v", got[0])
	}
	if got[1].Volume != 0 {
		t.Errorf("empty volume = %d, want 0", got[1].Volume)
	}
}

func TestCandleRecordsBadInput(t *testing.T) {
	if _, err := CandleRecords("NSE", "1", []finvasia.Candle{{Time: "2024-01-10T09:15:00"}}, nil); err == nil {
		t.Error("CandleRecords(bad time) = nil error")
	}
	if _, err := CandleRecords("NSE", "1", []finvasia.Candle{{Time: "10-01-2024 09:15:00", Volume: "x"}}, nil); err == nil {
		t.Error("CandleRecords(bad volume) = nil error")
	}
}
