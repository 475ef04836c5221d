// Package core provides the foundational domain types and contracts used by
// DeepResearch. It defines the core abstractions for:
//
//   - ResearchState (the mutable record threaded through the pipeline stages)
//   - Stages (units of pipeline work with classified outcomes)
//   - Events (immutable workflow progress records, a closed variant set)
//   - Threads and Turns (conversational containers for research runs)
//   - The pluggable ThreadStore contract
//
// The package intentionally keeps implementation concerns (stage logic, the
// orchestrator, transports, concrete stores) out of scope, exposing small
// interfaces to enable custom backends and isolated testing.
package core
