// Package logging provides a tiny abstraction over slog so the engine, pool
// and providers can depend on a minimal interface (Logger) while allowing
// users to plug any structured logger. RealmLogger adds contextual helpers
// (component, instance) and domain specific helpers for AI dispatches, ticks
// and world generation.
package logging
