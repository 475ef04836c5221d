// Package workflow contains the Orchestrator that drives one research turn
// through the plan, research and write stages as a strict state machine. The
// orchestrator owns turn lifecycle against the ThreadStore, emits progress
// events on a per-run channel and guarantees exactly one terminal event per
// run.
package workflow
