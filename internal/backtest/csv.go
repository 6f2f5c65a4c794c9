package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

func WriteTradesCSVFile(path string, rows []TradeRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteTradesCSV(f, rows)
}

func WriteTradesCSV(out io.Writer, rows []TradeRow) error {
	w := csv.NewWriter(out)

	header := []string{
		"index",
		"battle_id",
		"participant_id",
		"trade_id",
		"time_utc",
		"action",
		"asset",
		"price",
		"size",
		"profit_percent",
		"realized_pnl",
		"cum_pnl",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		row := []string{
			strconv.Itoa(r.Index),
			strconv.FormatUint(r.BattleID, 10),
			r.ParticipantID,
			r.TradeID,
			fmtTime(r.Time),
			string(r.Action),
			r.Asset,
			r.Price.String(),
			fmtDecimal(r.Size),
			fmtDecimal(r.ProfitPercent),
			fmtDecimal(r.RealizedPnL),
			fmtDecimal(r.CumPnL),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtDecimal(d decimal.Decimal) string {
	return d.StringFixed(6)
}
