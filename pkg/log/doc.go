// Package log provides structured logging for simforge using zerolog.
//
// A single global zerolog.Logger is configured once via Init; every
// component gets a child logger via WithComponent, WithHost, WithActor, or
// WithMailbox, each of which just tacks a field onto the global logger.
// SetCategoryThreshold lets a specific component log at a different level
// than the global one, matching the repeatable `--log category.threshold=level`
// CLI flag.
package log
