package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/equitron/equity-agent/internal/backtest"
)

// ExcelReporter writes backtest results to an xlsx workbook
type ExcelReporter struct{}

// NewExcelReporter creates an Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

type excelStyles struct {
	Header int
	Money  int
	Pct    int
}

// WriteBacktestXLSX writes the replay summary, closed trades and daily
// samples to the given path
func (r *ExcelReporter) WriteBacktestXLSX(result *backtest.Result, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const tradesSheet = "Trades"
	const dailySheet = "Daily"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(tradesSheet)
	fx.NewSheet(dailySheet)

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, summarySheet, result, styles); err != nil {
		return err
	}
	if err := r.writeTradesSheet(fx, tradesSheet, result, styles); err != nil {
		return err
	}
	if err := r.writeDailySheet(fx, dailySheet, result, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.Header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F5496"},
			Pattern: 1,
		},
	})
	if err != nil {
		return styles, err
	}

	styles.Money, err = fx.NewStyle(&excelize.Style{NumFmt: 177}) // $#,##0.00
	if err != nil {
		return styles, err
	}

	styles.Pct, err = fx.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	return styles, err
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, result *backtest.Result, styles excelStyles) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Initial Balance", result.StartBalance},
		{"Final Balance", result.EndBalance},
		{"Total Return", result.TotalReturn},
		{"Max Drawdown", result.MaxDrawdown},
		{"Total Fills", result.TotalTrades},
		{"Closed Trades", len(result.Trades)},
		{"Winning Trades", result.WinningTrades},
		{"Win Rate", result.WinRate()},
		{"Evaluations", result.Evaluations},
		{"Orders Admitted", result.OrdersAdmitted},
		{"Trading Days", result.Days},
		{"Final Profile", result.FinalProfile},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	rejRow := len(rows) + 2
	cell, _ := excelize.CoordinatesToCellName(1, rejRow)
	header := []interface{}{"Rejection Reason", "Count"}
	if err := fx.SetSheetRow(sheet, cell, &header); err != nil {
		return err
	}
	i := rejRow + 1
	for reason, count := range result.Rejections {
		cell, _ = excelize.CoordinatesToCellName(1, i)
		row := []interface{}{string(reason), count}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		i++
	}

	fx.SetCellStyle(sheet, "A1", "B1", styles.Header)
	return nil
}

func (r *ExcelReporter) writeTradesSheet(fx *excelize.File, sheet string, result *backtest.Result, styles excelStyles) error {
	header := []interface{}{"Closed At", "Symbol", "Side", "Quantity", "Entry", "Exit", "P&L", "Close Reason", "Profile"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, trade := range result.Trades {
		row := []interface{}{
			trade.ClosedAt.Format("2006-01-02 15:04:05"),
			trade.Symbol,
			trade.Side,
			trade.Quantity,
			trade.EntryPrice,
			trade.ExitPrice,
			trade.PnL,
			trade.CloseReason,
			trade.Profile,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	fx.SetCellStyle(sheet, "A1", "I1", styles.Header)
	if n := len(result.Trades); n > 0 {
		fx.SetCellStyle(sheet, "E2", fmt.Sprintf("G%d", n+1), styles.Money)
	}
	return nil
}

func (r *ExcelReporter) writeDailySheet(fx *excelize.File, sheet string, result *backtest.Result, styles excelStyles) error {
	header := []interface{}{"Date", "Start Equity", "End Equity", "Return", "Trades", "Wins"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, sample := range result.Samples {
		row := []interface{}{
			sample.Date,
			sample.StartingEquity,
			sample.EndingEquity,
			sample.Return(),
			sample.TradeCount,
			sample.WinCount,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	fx.SetCellStyle(sheet, "A1", "F1", styles.Header)
	if n := len(result.Samples); n > 0 {
		fx.SetCellStyle(sheet, "B2", fmt.Sprintf("C%d", n+1), styles.Money)
		fx.SetCellStyle(sheet, "D2", fmt.Sprintf("D%d", n+1), styles.Pct)
	}
	return nil
}
