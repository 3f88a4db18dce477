package market

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"okx-exec/pkg/exchanges/common"
)

var csvHeader = []string{"datetime", "open", "high", "low", "close", "volume", "openinterest"}

// WriteCSV writes bars with a header row. Times are UTC.
func WriteCSV(w io.Writer, bars []common.Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, k := range bars {
		rec := []string{
			time.UnixMilli(k.Timestamp).UTC().Format(time.DateTime),
			formatFloat(k.Open),
			formatFloat(k.High),
			formatFloat(k.Low),
			formatFloat(k.Close),
			formatFloat(k.Volume),
			"0",
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
