// Package session implements the bounded in-memory session registry:
// capacity-bounded creation with least-recently-active eviction, lazy
// idle expiry, exclusive turn admission and a background janitor that
// sweeps expired sessions on an interval (plus an optional cron
// maintenance schedule).
//
// The Session type itself lives in core to centralize domain contracts;
// this package owns the lifecycle around it. Alternative backends would
// slot in as sibling packages without changing calling code; only the
// wiring layer decides which implementation to instantiate.
package session
