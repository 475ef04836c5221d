// Package stage implements the three pipeline executors that drive a research
// turn: Planner decomposes the query into prioritized sub-questions, Researcher
// fans out web searches and synthesizes evidence notes, and Writer composes the
// final report. Each executor implements core.Stage, absorbs partial failures
// into the shared state's error records and only aborts the pipeline on fatal
// outcomes.
package stage
