// Package logging provides the minimal logging interface the rest of
// paymesh depends on, plus adapters for slog and zerolog.
//
// The Logger interface defines the standard structured methods (Debug,
// Info, Warn, Error) taking a message and alternating key/value pairs.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZerologAdapter and NewServiceLogger for the daemon's zerolog setup
//   - NoOpLogger for silent operation (testing, library embedding)
//
// The design intentionally keeps the interface minimal so library users
// can plug any structured logger without vendor lock-in.
package logging
