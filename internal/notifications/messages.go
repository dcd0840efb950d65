package notifications

import "fmt"

// Message templates shared by every notification channel.

// TradeClosed formats a closed round trip
func TradeClosed(symbol, reason string, pnl float64) string {
	word := "profit"
	if pnl < 0 {
		word = "loss"
	}
	return fmt.Sprintf("Trade closed: %s (%s)\nRealized %s: $%.2f", symbol, reason, word, pnl)
}

// BreakerTripped formats a daily-loss circuit breaker trip
func BreakerTripped(symbol string) string {
	return fmt.Sprintf("Daily loss breaker tripped on %s: no new entries until the next trading day", symbol)
}

// DailySummary formats the end-of-day report
func DailySummary(day string, startEquity, endEquity, lossToday float64, entries int) string {
	var pct float64
	if startEquity > 0 {
		pct = (endEquity - startEquity) / startEquity * 100
	}
	return fmt.Sprintf("Daily summary %s\nEquity: $%.2f -> $%.2f (%+.2f%%)\nEntries: %d, realized losses: $%.2f",
		day, startEquity, endEquity, pct, entries, lossToday)
}

// ProfileSwitched formats a risk-profile change
func ProfileSwitched(from, to, reason string) string {
	return fmt.Sprintf("Risk profile switched: %s -> %s (%s)", from, to, reason)
}
