// Package notifications delivers job completion events.
//
// Two transports are supported: an ntfy push (human readable) when a topic is
// configured, and a JSON webhook carrying the completion payload, sent to the
// job's callback URL or the configured default. Webhook bodies are signed with
// HMAC-SHA256 when a secret is configured. With neither transport configured
// Publish is a no-op. Cancelled jobs never produce events.
package notifications
