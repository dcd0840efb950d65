package reporting

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/equitron/equity-agent/internal/backtest"
	"github.com/equitron/equity-agent/internal/risk"
	"github.com/equitron/equity-agent/pkg/types"
)

// ConsoleReporter prints backtest results and portfolio snapshots to the
// terminal
type ConsoleReporter struct{}

// NewConsoleReporter creates a console reporter
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// PrintBacktestResult prints the replay summary, rejection breakdown and
// closed trades
func (r *ConsoleReporter) PrintBacktestResult(result *backtest.Result) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("📊 BACKTEST RESULTS")
	fmt.Println(strings.Repeat("=", 50))

	fmt.Printf("💰 Initial Balance:  $%.2f\n", result.StartBalance)
	fmt.Printf("💰 Final Balance:    $%.2f\n", result.EndBalance)
	fmt.Printf("📈 Total Return:     %.2f%%\n", result.TotalReturn*100)
	fmt.Printf("📉 Max Drawdown:     %.2f%%\n", result.MaxDrawdown*100)
	fmt.Printf("🔄 Total Fills:      %d\n", result.TotalTrades)
	fmt.Printf("✅ Winning Trades:   %d of %d closed (%.1f%%)\n",
		result.WinningTrades, len(result.Trades), result.WinRate()*100)
	fmt.Printf("📅 Trading Days:     %d\n", result.Days)
	fmt.Printf("🧭 Final Profile:    %s\n", result.FinalProfile)

	if len(result.Rejections) > 0 {
		fmt.Println()
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("Gate Rejections")
		t.AppendHeader(table.Row{"Reason", "Count"})

		reasons := make([]string, 0, len(result.Rejections))
		for reason := range result.Rejections {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			t.AppendRow(table.Row{reason, result.Rejections[risk.Reason(reason)]})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
	}

	if len(result.Trades) > 0 {
		fmt.Println()
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("Closed Trades")
		t.AppendHeader(table.Row{"Symbol", "Side", "Qty", "Entry", "Exit", "P&L", "Reason", "Profile"})
		for _, trade := range result.Trades {
			t.AppendRow(table.Row{
				trade.Symbol,
				trade.Side,
				fmt.Sprintf("%.2f", trade.Quantity),
				fmt.Sprintf("$%.2f", trade.EntryPrice),
				fmt.Sprintf("$%.2f", trade.ExitPrice),
				colorPnL(trade.PnL),
				trade.CloseReason,
				trade.Profile,
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
	}
}

// PrintPortfolio prints the current portfolio snapshot
func (r *ConsoleReporter) PrintPortfolio(snap types.PortfolioSnapshot, profile string) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Printf("💼 PORTFOLIO (%s)\n", snap.TradingDay)
	fmt.Println(strings.Repeat("=", 50))

	fmt.Printf("🧭 Profile:        %s\n", profile)
	fmt.Printf("💰 Cash:           $%.2f\n", snap.Cash)
	fmt.Printf("💰 Equity:         $%.2f\n", snap.Equity)
	fmt.Printf("💹 Realized P&L:   %s\n", colorPnL(snap.RealizedPnL))
	fmt.Printf("💹 Unrealized P&L: %s\n", colorPnL(snap.UnrealizedPnL))
	fmt.Printf("🔄 Trades Today:   %d\n", snap.TradesToday)
	fmt.Printf("📉 Loss Today:     $%.2f\n", snap.LossToday)

	if len(snap.Positions) == 0 {
		fmt.Println("📭 No open positions")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Open Positions")
	t.AppendHeader(table.Row{"Symbol", "Qty", "Entry", "Current", "Stop", "Take", "Unrealized"})

	symbols := make([]string, 0, len(snap.Positions))
	for sym := range snap.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		pos := snap.Positions[sym]
		t.AppendRow(table.Row{
			pos.Symbol,
			fmt.Sprintf("%.2f", pos.Quantity),
			fmt.Sprintf("$%.2f", pos.EntryPrice),
			fmt.Sprintf("$%.2f", pos.CurrentPrice),
			fmt.Sprintf("$%.2f", pos.StopLossPrice),
			fmt.Sprintf("$%.2f", pos.TakeProfitPrice),
			colorPnL(pos.UnrealizedPnL()),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func colorPnL(v float64) string {
	s := fmt.Sprintf("$%.2f", v)
	if v > 0 {
		return text.FgGreen.Sprint(s)
	}
	if v < 0 {
		return text.FgRed.Sprint(s)
	}
	return s
}
