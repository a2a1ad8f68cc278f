package flowline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solenne/flowline/pkg/api"
)

// LogNotificationGateway writes notifications to a slog.Logger instead of
// delivering them. Useful in development and as a wiring example for real
// gateways.
type LogNotificationGateway struct {
	Logger *slog.Logger
}

var _ api.NotificationGateway = (*LogNotificationGateway)(nil)

// NewLogNotificationGateway creates a gateway logging through logger, or
// slog.Default() when logger is nil.
func NewLogNotificationGateway(logger *slog.Logger) *LogNotificationGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotificationGateway{Logger: logger}
}

func (g *LogNotificationGateway) Send(ctx context.Context, userID, kind, title, message string, data map[string]any) error {
	g.Logger.InfoContext(ctx, "notification",
		slog.String("user", userID),
		slog.String("kind", kind),
		slog.String("title", title),
		slog.String("message", message),
	)
	return nil
}

// AuditEntry is one recorded state transition.
type AuditEntry struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
	Metadata   map[string]any
	At         time.Time
}

// MemoryAuditRecorder keeps audit entries in memory, in arrival order. It
// is safe for concurrent use.
type MemoryAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

var _ api.AuditRecorder = (*MemoryAuditRecorder)(nil)

// NewMemoryAuditRecorder creates an empty recorder.
func NewMemoryAuditRecorder() *MemoryAuditRecorder {
	return &MemoryAuditRecorder{}
}

func (r *MemoryAuditRecorder) Record(ctx context.Context, action, entityType, entityID, actorID string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Metadata:   metadata,
		At:         time.Now(),
	})
	return nil
}

// Entries returns a copy of all recorded entries.
func (r *MemoryAuditRecorder) Entries() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEntry(nil), r.entries...)
}

// ActionFunc is a single registered action implementation.
type ActionFunc func(ctx context.Context, params map[string]any, actx ActionContext) (map[string]any, error)

// ActionRegistry maps action names to functions and implements
// ActionRunner. Register all actions before starting the engine.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

var _ api.ActionRunner = (*ActionRegistry)(nil)

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]ActionFunc)}
}

// Register binds name to fn, replacing any previous binding.
func (r *ActionRegistry) Register(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

func (r *ActionRegistry) Invoke(ctx context.Context, action string, params map[string]any, actx ActionContext) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.actions[action]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	return fn(ctx, params, actx)
}
