package domain

import (
	"strings"
	"time"
)

// Well-known system setting keys.
const (
	SettingTestMode = "test_mode"
)

// SystemSetting is one mutable key/value pair exposed to operators.
type SystemSetting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Truthy reports whether the setting's value reads as enabled.
func (s SystemSetting) Truthy() bool {
	switch strings.ToLower(strings.TrimSpace(s.Value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
