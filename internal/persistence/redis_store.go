package persistence

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/solenne/flowline/pkg/api"
)

// RedisInstanceStore is an InstanceStore backed by Redis. It uses a simple
// key structure:
//
//	<prefix>inst:<id>            => JSON-encoded instance
//	<prefix>idx:all              => SET of all instance IDs
//	<prefix>idx:wf:<workflowID>  => SET of instance IDs per definition
//	<prefix>idx:status:<status>  => SET of instance IDs per status
//	<prefix>idx:tenant:<tenant>  => SET of instance IDs per tenant
//
// The optimistic sequence check rides on WATCH/MULTI: an update that loses
// the race fails the transaction and surfaces ErrVersionConflict.
type RedisInstanceStore struct {
	client *redis.Client
	prefix string
}

var _ InstanceStore = (*RedisInstanceStore)(nil)

// NewRedisInstanceStore creates a RedisInstanceStore.
// prefix is optional but recommended (e.g. "flowline:").
func NewRedisInstanceStore(client *redis.Client, prefix string) *RedisInstanceStore {
	if prefix == "" {
		prefix = "flowline:"
	}
	return &RedisInstanceStore{client: client, prefix: prefix}
}

func (s *RedisInstanceStore) keyInstance(id string) string {
	return s.prefix + "inst:" + id
}

func (s *RedisInstanceStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisInstanceStore) keyWorkflow(workflowID string) string {
	return s.prefix + "idx:wf:" + workflowID
}

func (s *RedisInstanceStore) keyStatus(status api.InstanceStatus) string {
	return s.prefix + "idx:status:" + string(status)
}

func (s *RedisInstanceStore) keyTenant(tenant string) string {
	return s.prefix + "idx:tenant:" + tenant
}

func (s *RedisInstanceStore) SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	if inst.Seq == 0 {
		inst.Seq = 1
	}

	data, err := encodeInstance(inst)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyInstance(inst.ID), data, 0)
	pipe.SAdd(ctx, s.keyAll(), inst.ID)
	pipe.SAdd(ctx, s.keyWorkflow(inst.WorkflowID), inst.ID)
	pipe.SAdd(ctx, s.keyStatus(inst.Status), inst.ID)
	if inst.Tenant != "" {
		pipe.SAdd(ctx, s.keyTenant(inst.Tenant), inst.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisInstanceStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	key := s.keyInstance(inst.ID)
	expected := inst.Seq

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrInstanceNotFound
			}
			return err
		}

		stored, err := decodeInstance(data)
		if err != nil {
			return err
		}
		if stored.Seq != expected {
			return ErrVersionConflict
		}

		inst.Seq = expected + 1
		updated, err := encodeInstance(inst)
		if err != nil {
			inst.Seq = expected
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			if stored.Status != inst.Status {
				pipe.SRem(ctx, s.keyStatus(stored.Status), inst.ID)
				pipe.SAdd(ctx, s.keyStatus(inst.Status), inst.ID)
			}
			return nil
		})
		if err != nil {
			inst.Seq = expected
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		inst.Seq = expected
		return ErrVersionConflict
	}
	return err
}

func (s *RedisInstanceStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	data, err := s.client.Get(ctx, s.keyInstance(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return decodeInstance(data)
}

func (s *RedisInstanceStore) ListInstances(ctx context.Context, f InstanceFilter) ([]*api.WorkflowInstance, error) {
	keys := []string{s.keyAll()}
	if f.WorkflowID != "" {
		keys = append(keys, s.keyWorkflow(f.WorkflowID))
	}
	if f.Status != "" {
		keys = append(keys, s.keyStatus(f.Status))
	}
	if f.Tenant != "" {
		keys = append(keys, s.keyTenant(f.Tenant))
	}

	ids, err := s.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var result []*api.WorkflowInstance
	for _, id := range ids {
		inst, err := s.GetInstance(ctx, id)
		if err != nil {
			if errors.Is(err, ErrInstanceNotFound) {
				// Index entry outlived its instance; skip.
				continue
			}
			return nil, err
		}
		result = append(result, inst)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (s *RedisInstanceStore) CountActive(ctx context.Context, workflowID string) (int, error) {
	n := 0
	for _, status := range []api.InstanceStatus{
		api.InstancePending,
		api.InstanceRunning,
		api.InstanceSuspended,
	} {
		ids, err := s.client.SInter(ctx, s.keyWorkflow(workflowID), s.keyStatus(status)).Result()
		if err != nil {
			return 0, err
		}
		n += len(ids)
	}
	return n, nil
}
