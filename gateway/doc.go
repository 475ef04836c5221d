// Package gateway translates workflow events into the Server-Sent Events wire
// protocol. The orchestrator's closed event enum is mapped to string-tagged
// frames only here, at the wire edge: thread_id first, stage progress frames,
// chunked message frames for the report body, and exactly one terminal done or
// error frame.
package gateway
