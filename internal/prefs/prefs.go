// Package prefs holds user-visible message strings. Every string the
// core emits on its own behalf (rate-limit rejections, generic error
// feedback) resolves through a Bundle so deployments can localize or
// rebrand without code changes.
package prefs

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Well-known message keys.
const (
	KeyRateLimitRejected = "system.ratelimit.rejected"
	KeyGenericFeedback   = "system.error.generic.feedback"
)

// Defaults returns the built-in message set.
func Defaults() map[string]string {
	return map[string]string{
		KeyRateLimitRejected: "You're sending messages too quickly. Please try again in {{RETRY_AFTER}}.",
		KeyGenericFeedback:   "Something went wrong while processing your message. Please try again.",
	}
}

// Bundle resolves message keys to text, falling back to the built-in
// defaults. It implements the pipeline's preferences port.
type Bundle struct {
	mu       sync.RWMutex
	messages map[string]string
}

// NewBundle creates a bundle with the defaults plus the given overrides.
func NewBundle(overrides map[string]string) *Bundle {
	messages := Defaults()
	for key, text := range overrides {
		if text != "" {
			messages[key] = text
		}
	}
	return &Bundle{messages: messages}
}

// LoadBundle reads overrides from a yaml file of key: text pairs.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preferences file: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing preferences file: %w", err)
	}
	return NewBundle(overrides), nil
}

// Message returns the text for a key, or "" when unknown.
func (b *Bundle) Message(key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.messages[key]
}

// Set overrides one message at runtime.
func (b *Bundle) Set(key, text string) {
	b.mu.Lock()
	b.messages[key] = text
	b.mu.Unlock()
}
