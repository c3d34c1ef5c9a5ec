// Package config loads, validates, and normalizes the vidmill TOML
// configuration. The resulting Config is immutable by convention and is
// passed explicitly into every constructor that needs it.
package config
