// Package notifications delivers batch lifecycle events to operators via
// ntfy push notifications. The default implementation publishes to the
// topic configured in config.toml and gracefully degrades to a no-op when
// notifications are disabled. Delivery is best effort and never blocks or
// fails batch processing.
package notifications
