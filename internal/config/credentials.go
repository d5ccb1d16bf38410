package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// apiKeyEnv is read ahead of anthropic.api_key.
const apiKeyEnv = "ANTHROPIC_API_KEY"

var (
	// ErrNoAPIKey is returned when an anthropic backend has no key to use.
	ErrNoAPIKey = errors.New("no Anthropic API key configured")
	// ErrMalformedAPIKey wraps every ValidateAPIKey format failure.
	ErrMalformedAPIKey = errors.New("malformed Anthropic API key")
)

// KeySource names where the Anthropic API key was found.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// APIKey is the credential shared by every anthropic-provider backend.
type APIKey struct {
	Value  string
	Source KeySource
}

// Masked returns the key with everything but its prefix and last four
// characters hidden.
func (k APIKey) Masked() string {
	return MaskAPIKey(k.Value)
}

// ResolveAPIKey finds the key for anthropic-provider backends. The
// environment wins over the config file, and a ${VAR} reference that did
// not expand counts as unset. Bedrock and echo backends never need it.
func ResolveAPIKey(cfg *Config) (APIKey, error) {
	if key := os.Getenv(apiKeyEnv); key != "" {
		return APIKey{Value: key, Source: KeySourceEnv}, nil
	}
	if cfg != nil {
		if key := os.ExpandEnv(cfg.Anthropic.APIKey); key != "" && !strings.HasPrefix(key, "${") {
			return APIKey{Value: key, Source: KeySourceConfig}, nil
		}
	}
	return APIKey{Source: KeySourceNone}, ErrNoAPIKey
}

// AnthropicBackends returns the ids of the backends that authenticate with
// the API key, in declaration order.
func (c *Config) AnthropicBackends() []string {
	var ids []string
	for _, b := range c.Backends {
		if b.Provider == ProviderAnthropic {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// ValidateAPIKey checks the shape of an Anthropic key without calling the
// API.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, "sk-ant-"):
		return fmt.Errorf("%w: expected the sk-ant- prefix", ErrMalformedAPIKey)
	case len(key) < 20:
		return fmt.Errorf("%w: too short", ErrMalformedAPIKey)
	}
	return nil
}

// MaskAPIKey hides a key for display.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
