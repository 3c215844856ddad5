package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"finvasia/pkg/finvasia"
)

// CandleTimeLayout is the broker's candle timestamp format, in exchange
// local time.
const CandleTimeLayout = "02-01-2006 15:04:05"

// CandleRecords converts broker candles for one instrument into archive
// records. Timestamps are parsed in loc (UTC when nil). An empty volume is
// stored as 0.
func CandleRecords(exchange, token string, candles []finvasia.Candle, loc *time.Location) ([]CandleRecord, error) {
	if loc == nil {
		loc = time.UTC
	}
	exchange = strings.ToUpper(exchange)
	records := make([]CandleRecord, 0, len(candles))
	for _, c := range candles {
		ts, err := time.ParseInLocation(CandleTimeLayout, c.Time, loc)
		if err != nil {
			return nil, fmt.Errorf("candle time %q: %w", c.Time, err)
		}
		var vol int64
		if v := strings.TrimSpace(c.Volume); v != "" {
			vol, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("candle volume %q: %w", c.Volume, err)
			}
		}
		records = append(records, CandleRecord{
			Exchange:  exchange,
			Token:     token,
			Timestamp: ts.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    vol,
		})
	}
	return records, nil
}
