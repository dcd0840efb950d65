package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/equitron/equity-agent/internal/backtest"
	"github.com/equitron/equity-agent/internal/config"
	"github.com/equitron/equity-agent/internal/perf"
	"github.com/equitron/equity-agent/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (YAML); defaults apply when omitted")
		dataFile   = flag.String("data", "", "Signal series CSV (timestamp,symbol,score,risk_score,price)")
		profile    = flag.String("profile", "", "Risk profile to start with (overrides config)")
		balance    = flag.Float64("balance", 0, "Initial balance (overrides config)")
		adapt      = flag.Bool("adapt", false, "Run the profile adapter at day boundaries")
		seed       = flag.Int64("seed", 42, "Paper broker seed for reproducible slippage")
		xlsxOut    = flag.String("xlsx", "", "Write results to an xlsx workbook at this path")
	)
	flag.Parse()

	if *dataFile == "" {
		fmt.Println("❌ -data is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *profile != "" {
		cfg.Trading.ActiveProfile = *profile
	}
	if *balance > 0 {
		cfg.Trading.InitialBalance = *balance
	}

	paperCfg := cfg.Virtual
	paperCfg.Seed = *seed

	engine, err := backtest.NewEngine(backtest.Config{
		InitialBalance:  cfg.Trading.InitialBalance,
		Profile:         cfg.Trading.ActiveProfile,
		Profiles:        cfg.Profiles,
		AllowFractional: cfg.Trading.AllowFractional,
		AllowShort:      cfg.Trading.AllowShortSelling,
		Timezone:        cfg.Trading.Timezone,
		Paper:           paperCfg,
		Adapt:           *adapt,
		Adapter:         cfg.Learning.Adapter,
	})
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	signals, err := backtest.LoadSignalsCSV(*dataFile, cfg.Location())
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("📥 Loaded %d signals from %s\n", len(signals), *dataFile)

	started := time.Now()
	result, err := engine.Run(signals)
	if err != nil {
		fmt.Printf("❌ Backtest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("⏱️ Replay finished in %s\n", time.Since(started).Round(time.Millisecond))

	reporting.NewConsoleReporter().PrintBacktestResult(result)

	stats := perf.Summarize(result.Samples)
	fmt.Printf("\n📊 Window: avg daily return %.3f%%, win rate %.1f%%\n",
		stats.AvgDailyReturn*100, stats.WinRate*100)

	if *xlsxOut != "" {
		if err := reporting.NewExcelReporter().WriteBacktestXLSX(result, *xlsxOut); err != nil {
			fmt.Printf("❌ Failed to write workbook: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("💾 Results written to %s\n", *xlsxOut)
	}
}
