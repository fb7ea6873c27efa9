package types

import (
	"fmt"
	"strings"
)

// Provider identifies the automation-service provider the external tool talks to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Providers lists every supported provider in display order.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// Valid returns true if this is a recognized provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

// DefaultModel returns the model used when a request names none.
func (p Provider) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4"
	case ProviderAnthropic:
		return "claude-3-sonnet-20240229"
	case ProviderGemini:
		return "gemini-2.0-flash"
	}
	return ""
}

// CredentialEnv returns the environment variable the external tool reads
// this provider's key from, e.g. OPENAI_API_KEY.
func (p Provider) CredentialEnv() string {
	return strings.ToUpper(string(p)) + "_API_KEY"
}

// ParseProvider resolves a provider from a case-insensitive name.
// Display names such as "OpenAI" are accepted.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q (want one of %v)", name, Providers())
	}
	return p, nil
}
