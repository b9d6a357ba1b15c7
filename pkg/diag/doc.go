/*
Package diag provides an in-memory warning broker for pacman-ostree's
composition pipeline.

Warnings are not errors: the error-handling design requires that leftover
user.ostreemeta xattrs, skipped special files, and packages already
present in the layered set never abort a composition. They are instead
published here and drained by whatever is observing the composition (the
CLI's logger, a test, or nothing at all if no one subscribed).

# Architecture

	┌──────────────────── WARNING BROKER ──────────────────────┐
	│                                                            │
	│  Publish(w) ──► warnCh (buffered 100) ──► run() ──►       │
	│                                           broadcast(w)     │
	│                                                 │          │
	│                                   ┌─────────────┼───────┐ │
	│                                   ▼             ▼       ▼ │
	│                              subscriber A  subscriber B ...│
	│                              (buffered 50 each, dropped   │
	│                               on overflow rather than      │
	│                               blocking the broadcaster)    │
	└────────────────────────────────────────────────────────────┘

A nil *Broker is valid everywhere a Broker is accepted: Warnf on a nil
broker is a no-op, so callers that don't care about diagnostics can pass
nil instead of constructing one.
*/
package diag
