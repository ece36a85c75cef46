// Package core defines the shared vocabulary of the AgenticRealm orchestration
// engine: decision provider roles, the request/response envelope exchanged with
// providers, the Provider capability interface itself, domain events, and the
// per-instance event bus that decouples synchronous player actions from the
// asynchronous reaction machinery.
//
// Nothing in this package performs I/O or mutates world state; it exists so
// that the pool, scenario, engine and provider packages can interoperate
// without importing each other.
package core
