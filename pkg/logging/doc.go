// Package logging provides subsystem-tagged logging helpers on top of
// log/slog. Credentials are never logged; callers pass identifiers and
// timestamps only.
package logging
