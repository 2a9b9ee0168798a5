// Package slogx holds slog attribute helpers shared by the llmbridge packages.
package slogx

import "log/slog"

// KeyProvider is the attribute key used to tag log entries with a provider name.
const KeyProvider = "provider"

// Error returns an attribute with the key "error" and the error's message.
// A nil error is rendered as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Provider returns an attribute naming the LLM provider.
func Provider(name string) slog.Attr {
	return slog.String(KeyProvider, name)
}
