// Package api defines the public types and contracts of the flowline
// workflow engine: the definition and instance data model, the closed
// predicate language used by Condition steps, the error taxonomy, the
// collaborator interfaces (Scheduler, NotificationGateway, AuditRecorder,
// ActionRunner), and the Observer used for logging and metrics.
//
// Most applications import the root flowline package, which re-exports
// everything here; api exists so internal packages and custom store or
// collaborator implementations share one dependency-free vocabulary.
package api
