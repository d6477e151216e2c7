package app

import "strings"

const DefaultServerURL = "ws://localhost:7880"

// NormalizeServerURL falls back to the local dev server and downgrades
// wss://localhost, which has no certificate in dev setups.
func NormalizeServerURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultServerURL
	}
	if strings.HasPrefix(raw, "wss://localhost") {
		return "ws://" + strings.TrimPrefix(raw, "wss://")
	}
	return raw
}
