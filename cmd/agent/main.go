package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/equitron/equity-agent/internal/agent"
	"github.com/equitron/equity-agent/internal/config"
	"github.com/equitron/equity-agent/pkg/reporting"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file (YAML); defaults apply when omitted")
		signalsFile = flag.String("signals", "-", "Research signal stream (JSON lines), '-' for stdin")
		envFile     = flag.String("env", ".env", "Environment file for notifier credentials")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		// a missing .env is fine, the environment may be set externally
		if !os.IsNotExist(err) {
			fmt.Printf("⚠️ Failed to load %s: %v\n", *envFile, err)
		}
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	input := os.Stdin
	if *signalsFile != "-" {
		f, err := os.Open(*signalsFile)
		if err != nil {
			fmt.Printf("❌ Failed to open signal stream: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	a, err := agent.New(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to start agent: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("🚀 Equity agent starting")
	fmt.Printf("   Strategy: %s | Mode: %s | Profile: %s | Balance: $%.2f\n",
		cfg.Trading.Strategy, cfg.Trading.Mode, cfg.Trading.ActiveProfile, cfg.Trading.InitialBalance)
	if cfg.Monitoring.Enabled {
		fmt.Printf("   Status server on %s\n", cfg.Monitoring.ListenAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n🛑 Shutting down...")
		cancel()
	}()

	err = a.Run(ctx, agent.NewJSONLSource(input))

	// closing portfolio summary, whatever way the run ended
	reporting.NewConsoleReporter().PrintPortfolio(a.PortfolioSnapshot(), a.ActiveProfile())

	if err != nil {
		fmt.Printf("❌ Agent stopped with error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Agent stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
