// Package llm talks to OpenAI-compatible inference services.
//
// Two providers implement Provider:
//
//   - Client posts to a chat completions endpoint over plain HTTP. It accepts
//     image and video references, retries 408/429/5xx and timeouts with
//     exponential backoff, and tolerates the response quirks of
//     compatible-mode gateways (delta content, tool-call arguments, part
//     lists).
//   - OpenAIProvider goes through the openai-go SDK and is used when
//     llm.provider is "openai".
//
// Terminal errors carry services markers so stage retry policies can
// classify them: ErrTransient and ErrTimeout retry, ErrConfiguration and
// ErrValidation do not.
package llm
