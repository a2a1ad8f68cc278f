package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/solenne/flowline/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of DefinitionStore and
// InstanceStore backed by maps. It is non-durable and intended for tests
// and local development.
type InMemoryStore struct {
	mu          sync.RWMutex
	definitions map[string][]*api.WorkflowDefinition // id -> versions, ascending
	instances   map[string]*api.WorkflowInstance
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		definitions: make(map[string][]*api.WorkflowDefinition),
		instances:   make(map[string]*api.WorkflowInstance),
	}
}

var (
	_ DefinitionStore = (*InMemoryStore)(nil)
	_ InstanceStore   = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveDefinition(ctx context.Context, def *api.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.definitions[def.ID] = append(s.definitions[def.ID], cloneDefinition(def))
	return nil
}

func (s *InMemoryStore) GetDefinition(ctx context.Context, id string) (*api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.definitions[id]
	if len(versions) == 0 {
		return nil, ErrDefinitionNotFound
	}
	return cloneDefinition(versions[len(versions)-1]), nil
}

func (s *InMemoryStore) GetDefinitionVersion(ctx context.Context, id string, version int) (*api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, def := range s.definitions[id] {
		if def.Version == version {
			return cloneDefinition(def), nil
		}
	}
	return nil, ErrDefinitionNotFound
}

func (s *InMemoryStore) DeleteDefinition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[id]; !ok {
		return ErrDefinitionNotFound
	}
	delete(s.definitions, id)
	return nil
}

func (s *InMemoryStore) ListDefinitions(ctx context.Context, f DefinitionFilter) ([]*api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowDefinition
	for _, versions := range s.definitions {
		def := versions[len(versions)-1]
		if f.Tenant != "" && def.Tenant != f.Tenant {
			continue
		}
		if f.SubjectType != "" && def.SubjectType != f.SubjectType {
			continue
		}
		if f.Status != "" && def.Status != f.Status {
			continue
		}
		result = append(result, cloneDefinition(def))
	}

	// Stable creation-time order; the dispatcher relies on it.
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (s *InMemoryStore) SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst.Seq == 0 {
		inst.Seq = 1
	}
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *InMemoryStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.instances[inst.ID]
	if !ok {
		return ErrInstanceNotFound
	}
	if cur.Seq != inst.Seq {
		return ErrVersionConflict
	}

	inst.Seq++
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (s *InMemoryStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return cloneInstance(inst), nil
}

func (s *InMemoryStore) ListInstances(ctx context.Context, f InstanceFilter) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowInstance
	for _, inst := range s.instances {
		if f.Tenant != "" && inst.Tenant != f.Tenant {
			continue
		}
		if f.WorkflowID != "" && inst.WorkflowID != f.WorkflowID {
			continue
		}
		if f.Status != "" && inst.Status != f.Status {
			continue
		}
		result = append(result, cloneInstance(inst))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (s *InMemoryStore) CountActive(ctx context.Context, workflowID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, inst := range s.instances {
		if inst.WorkflowID == workflowID && !inst.Status.Terminal() {
			n++
		}
	}
	return n, nil
}
