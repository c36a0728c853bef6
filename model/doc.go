// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside paymesh.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests and offline demos (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from
// this package so the orchestration loop remains decoupled from vendor
// SDKs.
package model
