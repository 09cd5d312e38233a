// Package state defines the per-conversation shared state record.
//
// A State has three parts. Domain holds handler-owned data (destination,
// research, plan, costs...) and is merged from handler patches one top-level
// key at a time. History is the append-only conversation log. Control holds
// the routing fields owned by the dispatcher; it is never serialized, so it
// cannot leak into durable storage.
//
// Handlers request a continuation by returning exactly one Signal, a closed
// set of variants (Resume, Delegate, Callback, Chain, Fail, Terminal).
package state
