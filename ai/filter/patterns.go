package filter

import (
	"regexp"
	"sync"
)

// FilterType identifies a category of sensitive data.
type FilterType string

const (
	// Email matches email addresses.
	Email FilterType = "email"
	// Phone matches international and domestic phone numbers.
	Phone FilterType = "phone"
)

const (
	EmailPlaceholder = "[EMAIL_MASKED]"
	PhonePlaceholder = "[PHONE_MASKED]"
)

var (
	emailPattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	})

	// +1 (555) 123-4567, 555.123.4567, 5551234567. The country code is optional.
	phonePattern = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	})
)

// PatternConfig describes one scrubbing rule as loaded from YAML.
type PatternConfig struct {
	Type        FilterType `yaml:"type"`
	Regex       string     `yaml:"regex"`
	Placeholder string     `yaml:"placeholder"`
}

// FilterConfig configures the sanitizer.
type FilterConfig struct {
	// Patterns are applied in order. Empty means the built-in email and phone rules.
	Patterns []PatternConfig `yaml:"patterns"`
}

// DefaultConfig returns the built-in email then phone rules.
func DefaultConfig() FilterConfig {
	return FilterConfig{
		Patterns: []PatternConfig{
			{Type: Email, Regex: emailPattern().String(), Placeholder: EmailPlaceholder},
			{Type: Phone, Regex: phonePattern().String(), Placeholder: PhonePlaceholder},
		},
	}
}

type rule struct {
	typ         FilterType
	re          *regexp.Regexp
	placeholder string
}
