// Package keywords extracts highlight keywords from narration text via an
// OpenAI-compatible chat completion API. Extraction is an optional polish
// step: callers degrade gracefully when it fails.
package keywords
