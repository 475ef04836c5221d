// Package server exposes the research workflow over HTTP: POST /chat starts a
// turn and streams its progress as Server-Sent Events, GET /threads/{id}
// returns turn history, plus health and Prometheus metrics endpoints. The
// server owns transport concerns only; all research semantics live in the
// workflow package.
package server
