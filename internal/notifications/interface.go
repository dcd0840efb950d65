package notifications

// Alert levels
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error
}

// Multi fans an alert out to several notifiers; the first failure is
// returned but every notifier is attempted
type Multi []Notifier

func (m Multi) SendAlert(level, message string) error {
	var firstErr error
	for _, n := range m {
		if err := n.SendAlert(level, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
