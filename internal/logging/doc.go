// Package logging wraps log/slog with the attribute helpers, standardized
// field keys, and console/JSON handlers used across vidmill.
package logging
