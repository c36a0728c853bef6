// Package server exposes the payment pipeline over HTTP: a chat endpoint
// streaming turn events as SSE (or returning a buffered aggregate),
// session management, health, status and prometheus metrics. Failures
// map the error taxonomy onto HTTP statuses in a JSON error envelope.
package server
