package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solenne/flowline/pkg/api"
)

// PostgresStore implements DefinitionStore and InstanceStore on PostgreSQL
// via a pgx connection pool. Documents are stored as JSONB next to the
// filtered columns, mirroring the SQLite layout.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	_ DefinitionStore = (*PostgresStore)(nil)
	_ InstanceStore   = (*PostgresStore)(nil)
)

// NewPostgresStore initializes the required schema and returns a new
// PostgresStore.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wf_definitions (
			id TEXT NOT NULL,
			version INTEGER NOT NULL,
			tenant TEXT NOT NULL,
			subject_type TEXT NOT NULL,
			status TEXT NOT NULL,
			is_default BOOLEAN NOT NULL,
			created_at BIGINT NOT NULL,
			doc JSONB NOT NULL,
			PRIMARY KEY (id, version)
		);
		CREATE TABLE IF NOT EXISTS wf_instances (
			id TEXT PRIMARY KEY,
			tenant TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			workflow_version INTEGER NOT NULL,
			status TEXT NOT NULL,
			seq BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			doc JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_wf_instances_workflow
			ON wf_instances (workflow_id, status);`,
	)
	return err
}

func (s *PostgresStore) SaveDefinition(ctx context.Context, def *api.WorkflowDefinition) error {
	doc, err := encodeDefinition(def)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO wf_definitions (id, version, tenant, subject_type, status, is_default, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		def.ID,
		def.Version,
		def.Tenant,
		def.SubjectType,
		string(def.Status),
		def.IsDefault,
		def.CreatedAt.UnixNano(),
		doc,
	)
	return err
}

func (s *PostgresStore) GetDefinition(ctx context.Context, id string) (*api.WorkflowDefinition, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `
		SELECT doc FROM wf_definitions
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDefinitionNotFound
		}
		return nil, err
	}
	return decodeDefinition(doc)
}

func (s *PostgresStore) GetDefinitionVersion(ctx context.Context, id string, version int) (*api.WorkflowDefinition, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `
		SELECT doc FROM wf_definitions
		WHERE id = $1 AND version = $2`, id, version).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDefinitionNotFound
		}
		return nil, err
	}
	return decodeDefinition(doc)
}

func (s *PostgresStore) DeleteDefinition(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wf_definitions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

func (s *PostgresStore) ListDefinitions(ctx context.Context, f DefinitionFilter) ([]*api.WorkflowDefinition, error) {
	query := `
		SELECT d.doc
		FROM wf_definitions d
		JOIN (
			SELECT id, MAX(version) AS version
			FROM wf_definitions
			GROUP BY id
		) latest ON d.id = latest.id AND d.version = latest.version`
	var args []any
	var clauses []string

	if f.Tenant != "" {
		args = append(args, f.Tenant)
		clauses = append(clauses, fmt.Sprintf("d.tenant = $%d", len(args)))
	}
	if f.SubjectType != "" {
		args = append(args, f.SubjectType)
		clauses = append(clauses, fmt.Sprintf("d.subject_type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("d.status = $%d", len(args)))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY d.created_at, d.id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*api.WorkflowDefinition
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		def, err := decodeDefinition(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, def)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	if inst.Seq == 0 {
		inst.Seq = 1
	}

	doc, err := encodeInstance(inst)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO wf_instances (id, tenant, workflow_id, workflow_version, status, seq, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inst.ID,
		inst.Tenant,
		inst.WorkflowID,
		inst.WorkflowVersion,
		string(inst.Status),
		inst.Seq,
		inst.CreatedAt.UnixNano(),
		doc,
	)
	return err
}

func (s *PostgresStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	expected := inst.Seq
	inst.Seq = expected + 1

	doc, err := encodeInstance(inst)
	if err != nil {
		inst.Seq = expected
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE wf_instances
		SET status = $1, seq = $2, doc = $3
		WHERE id = $4 AND seq = $5`,
		string(inst.Status),
		inst.Seq,
		doc,
		inst.ID,
		expected,
	)
	if err != nil {
		inst.Seq = expected
		return err
	}
	if tag.RowsAffected() == 0 {
		inst.Seq = expected

		var n int
		if err := s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM wf_instances WHERE id = $1`, inst.ID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return ErrInstanceNotFound
		}
		return ErrVersionConflict
	}

	return nil
}

func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM wf_instances WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return decodeInstance(doc)
}

func (s *PostgresStore) ListInstances(ctx context.Context, f InstanceFilter) ([]*api.WorkflowInstance, error) {
	query := `SELECT doc FROM wf_instances`
	var args []any
	var clauses []string

	if f.Tenant != "" {
		args = append(args, f.Tenant)
		clauses = append(clauses, fmt.Sprintf("tenant = $%d", len(args)))
	}
	if f.WorkflowID != "" {
		args = append(args, f.WorkflowID)
		clauses = append(clauses, fmt.Sprintf("workflow_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*api.WorkflowInstance
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		inst, err := decodeInstance(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CountActive(ctx context.Context, workflowID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM wf_instances
		WHERE workflow_id = $1 AND status = ANY($2)`,
		workflowID,
		[]string{
			string(api.InstancePending),
			string(api.InstanceRunning),
			string(api.InstanceSuspended),
		},
	).Scan(&n)
	return n, err
}
