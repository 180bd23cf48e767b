package provider

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the validated, normalized configuration a provider adapter is
// constructed from. It is immutable after Validate — changing configuration
// requires building a new adapter, never mutating in place.
type Config struct {
	// APIKey is the vendor credential. Mandatory.
	APIKey string
	// Organization is the optional vendor organization or region header value.
	Organization string
	// BaseEndpoint overrides the vendor's default API endpoint.
	BaseEndpoint string
	// Timeout bounds each vendor HTTP call.
	Timeout time.Duration
	// MaxRetries bounds the retry executor's attempts per operation.
	MaxRetries int
}

// DefaultTimeout is applied when a Config leaves Timeout unset.
const DefaultTimeout = 30 * time.Second

// minAPIKeyLength is the shortest credential accepted by ValidateKey.
// Real vendor keys are far longer; this catches truncated paste errors.
const minAPIKeyLength = 20

// Validate checks the config and returns a new, fully-populated copy with
// defaults applied. The receiver is never mutated. keyPrefix is the
// vendor-specific credential prefix (e.g. "sk-"); pass "" to skip the
// prefix check.
func (c Config) Validate(keyPrefix string) (Config, error) {
	if err := ValidateKey(c.APIKey, keyPrefix); err != nil {
		return Config{}, err
	}
	out := c
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	return out, nil
}

// ValidateKey checks that a credential is present and matches the vendor's
// expected shape. The returned error is a Configuration-kind typed error and
// never contains the credential itself.
func ValidateKey(key, prefix string) error {
	if key == "" {
		return NewError(KindConfiguration, "credential is not set")
	}
	if prefix != "" && !strings.HasPrefix(key, prefix) {
		return NewError(KindConfiguration,
			fmt.Sprintf("credential does not start with %q (got %s)", prefix, MaskKey(key)))
	}
	if len(key) < minAPIKeyLength {
		return NewError(KindConfiguration,
			fmt.Sprintf("credential is too short (%d chars, want at least %d)", len(key), minAPIKeyLength))
	}
	return nil
}

// MaskKey returns a redacted form of a credential safe for logs: a fixed
// 5-character prefix and 4-character suffix with the middle elided. Short
// values are fully masked so nothing useful leaks.
func MaskKey(key string) string {
	if len(key) <= 10 {
		return "****"
	}
	return key[:5] + "..." + key[len(key)-4:]
}
