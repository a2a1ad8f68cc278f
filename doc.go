// Package flowline is an embeddable workflow orchestration engine for
// multi-tenant content systems.
//
// A WorkflowDefinition is an authored, versioned graph of typed steps:
// approvals, notifications, conditions, actions, delays, and fork/join
// pairs. Definitions bind to domain events through triggers; the
// dispatcher matches an incoming event against a tenant's active
// definitions and starts at most one WorkflowInstance, which pins the
// definition version current at creation time.
//
// Instances advance step by step. Auto-completing steps (notification,
// condition, action, fork, join) run inline; suspending steps (approval,
// delay) park the instance until an external completion arrives, either
// from a human actor or from the scheduler. Every persisted update is
// guarded by an optimistic sequence check, so two racing completions of
// the same approval resolve to exactly one winner.
//
// The root package re-exports the public API and wires up ready-made
// deployments: NewInMemoryEngine for tests and embedding, NewSQLiteEngine
// and NewSQLiteBundle for single-node durability, NewPostgresEngine and
// NewRedisEngine for shared stores, and LocalRunner for an engine with
// background workers and a queue-backed scheduler in one value.
package flowline
