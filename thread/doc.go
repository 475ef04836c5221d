// Package thread provides ThreadStore implementations. The in-memory store is
// the default: process-lifetime persistence, suitable for tests and
// single-instance deployments. Durable backends can implement
// core.ThreadStore without touching the rest of the engine.
package thread
