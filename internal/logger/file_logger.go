package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger represents a file logger for trading activities. One logger is
// created per strategy so runs with different risk profiles keep separate
// audit trails.
type Logger struct {
	strategy string
	logFile  *os.File
	logger   *log.Logger
	mu       sync.Mutex
	logDir   string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo     LogLevel = "INFO"
	LogLevelWarning  LogLevel = "WARN"
	LogLevelError    LogLevel = "ERROR"
	LogLevelTrade    LogLevel = "TRADE"
	LogLevelDecision LogLevel = "DECISION"
)

// NewLogger creates a new file logger for the specified strategy
func NewLogger(strategy string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", strategy, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		strategy: strategy,
		logFile:  file,
		logger:   log.New(file, "", 0),
		logDir:   logDir,
	}

	l.writeSessionHeader()

	return l, nil
}

// writeSessionHeader writes a session start header to the log
func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚀 TRADING SESSION STARTED
================================================================================
Strategy: %s
Started: %s
================================================================================
`, l.strategy, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Decision logs the outcome of an evaluation cycle
func (l *Logger) Decision(format string, args ...interface{}) {
	l.Log(LogLevelDecision, format, args...)
}

// LogDecision logs a structured evaluation outcome for a symbol
func (l *Logger) LogDecision(symbol, outcome, reason string, quantity float64) {
	if reason != "" {
		l.Decision("%s -> %s (%s)", symbol, outcome, reason)
		return
	}
	l.Decision("%s -> %s qty=%.4f", symbol, outcome, quantity)
}

// LogFill logs a settled order fill
func (l *Logger) LogFill(symbol, side, orderID string, quantity, price, commission float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	fillLog := fmt.Sprintf(`
[%s] [TRADE] ==================== %s FILLED ====================
✅ Order ID: %s
📦 Quantity: %.4f %s
💰 Fill Price: $%.2f
💵 Commission: $%.4f
=============================================================`,
		timestamp, side, orderID, quantity, symbol, price, commission)

	l.logger.Println(fillLog)
}

// LogPositionClose logs a completed position round trip
func (l *Logger) LogPositionClose(symbol, reason string, entryPrice, exitPrice, pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	closeLog := fmt.Sprintf(`
[%s] [TRADE] ==================== POSITION CLOSED ====================
📌 Symbol: %s (%s)
🎯 Entry Price: $%.2f
🚪 Exit Price: $%.2f
💹 Realized P&L: $%.2f
==============================================================`,
		timestamp, symbol, reason, entryPrice, exitPrice, pnl)

	l.logger.Println(closeLog)
}

// LogDailySummary logs the end-of-day portfolio summary
func (l *Logger) LogDailySummary(day string, startEquity, endEquity, lossToday float64, trades int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	summary := fmt.Sprintf(`
[%s] [INFO] ==================== DAILY SUMMARY %s ====================
💼 Start Equity: $%.2f | End Equity: $%.2f
📉 Realized Losses: $%.2f
🔄 Trades: %d
==============================================================`,
		timestamp, day, startEquity, endEquity, lossToday, trades)

	l.logger.Println(summary)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		footer := fmt.Sprintf(`
================================================================================
🛑 TRADING SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, timestamp)
		l.logger.Print(footer)

		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", l.strategy, timestamp)
	return filepath.Join(l.logDir, filename)
}
