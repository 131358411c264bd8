package token

import "fmt"

// ConfigurationError reports a missing or invalid media project setting.
// It is fatal: callers surface it at startup instead of at first join.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// ValidateConfig fails fast when no application identity is set.
func ValidateConfig(appID string) error {
	if appID == "" {
		return &ConfigurationError{Field: "RTC_APP_ID", Reason: "is required"}
	}
	return nil
}
