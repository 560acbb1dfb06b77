package agent

import (
	"strings"

	"kite-agent-bridge/internal/types"
)

const (
	msgNotAuthenticated = "Not authenticated. Please login first."
	msgNotInitialized   = "KiteConnect instance not initialized."
)

// failureKind groups error envelopes by how they are explained to the user.
type failureKind int

const (
	failureOperation failureKind = iota
	failureAuth
	failureTransport
)

func classify(msg string) failureKind {
	switch {
	case strings.HasPrefix(msg, "Connection Error"),
		strings.HasPrefix(msg, "HTTP Error"),
		strings.HasPrefix(msg, "Request failed"):
		return failureTransport
	case msg == msgNotAuthenticated,
		msg == msgNotInitialized,
		strings.Contains(msg, "TokenException"),
		strings.Contains(msg, "api_key` or `access_token"),
		strings.Contains(msg, "Token is invalid or has expired"):
		return failureAuth
	default:
		return failureOperation
	}
}

// explain turns an error envelope into the sentence shown to the user.
// Broker messages are quoted verbatim.
func explain(env types.Envelope) string {
	msg := strings.TrimSpace(env.Message)
	if msg == "" {
		msg = "unknown error"
	}
	switch classify(msg) {
	case failureTransport:
		return "The local Kite proxy server appears to be unreachable. Start it with `kitebridge serve` and try again. (" + msg + ")"
	case failureAuth:
		return "You are not logged in to Kite or your session has expired. Please log in first, for example by saying \"log me in\". (" + msg + ")"
	default:
		return "The request failed: " + msg
	}
}
