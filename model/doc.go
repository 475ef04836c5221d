// Package model defines the provider-agnostic text generation capability used
// by the pipeline stages.
//
// Core goals:
//   - Keep request/response shapes minimal and transport independent
//   - Classify provider failures behind a single error type (ProviderError)
//   - Facilitate lightweight mocking for tests (MockGenerator)
//
// Providers (e.g. OpenAI, Anthropic) implement the Generator interface from
// this package so the stages remain decoupled from vendor SDKs.
package model
