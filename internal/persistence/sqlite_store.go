package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/solenne/flowline/pkg/api"
)

// SQLiteStore implements DefinitionStore and InstanceStore on SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Definitions and instances are stored as JSON documents alongside the
// columns queries filter on. Definition rows are keyed (id, version) so
// every version is retained for instances that pinned it.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ DefinitionStore = (*SQLiteStore)(nil)
	_ InstanceStore   = (*SQLiteStore)(nil)
)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS wf_definitions (
			id TEXT NOT NULL,
			version INTEGER NOT NULL,
			tenant TEXT NOT NULL,
			subject_type TEXT NOT NULL,
			status TEXT NOT NULL,
			is_default INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			doc BLOB NOT NULL,
			PRIMARY KEY (id, version)
		);
		CREATE TABLE IF NOT EXISTS wf_instances (
			id TEXT PRIMARY KEY,
			tenant TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			workflow_version INTEGER NOT NULL,
			status TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			doc BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_wf_instances_workflow
			ON wf_instances (workflow_id, status);`,
	)
	return err
}

func (s *SQLiteStore) SaveDefinition(ctx context.Context, def *api.WorkflowDefinition) error {
	doc, err := encodeDefinition(def)
	if err != nil {
		return err
	}

	isDefault := 0
	if def.IsDefault {
		isDefault = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wf_definitions (id, version, tenant, subject_type, status, is_default, created_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID,
		def.Version,
		def.Tenant,
		def.SubjectType,
		string(def.Status),
		isDefault,
		def.CreatedAt.UnixNano(),
		doc,
	)
	return err
}

func (s *SQLiteStore) GetDefinition(ctx context.Context, id string) (*api.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc FROM wf_definitions
		WHERE id = ?
		ORDER BY version DESC
		LIMIT 1`, id)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDefinitionNotFound
		}
		return nil, err
	}
	return decodeDefinition(doc)
}

func (s *SQLiteStore) GetDefinitionVersion(ctx context.Context, id string, version int) (*api.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc FROM wf_definitions
		WHERE id = ? AND version = ?`, id, version)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDefinitionNotFound
		}
		return nil, err
	}
	return decodeDefinition(doc)
}

func (s *SQLiteStore) DeleteDefinition(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wf_definitions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

func (s *SQLiteStore) ListDefinitions(ctx context.Context, f DefinitionFilter) ([]*api.WorkflowDefinition, error) {
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
		clauses = append(clauses, "d.tenant = ?")
		args = append(args, f.Tenant)
	}
	if f.SubjectType != "" {
		clauses = append(clauses, "d.subject_type = ?")
		args = append(args, f.SubjectType)
	}
	if f.Status != "" {
		clauses = append(clauses, "d.status = ?")
		args = append(args, string(f.Status))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY d.created_at, d.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	if inst.Seq == 0 {
		inst.Seq = 1
	}

	doc, err := encodeInstance(inst)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wf_instances (id, tenant, workflow_id, workflow_version, status, seq, created_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	expected := inst.Seq
	inst.Seq = expected + 1

	doc, err := encodeInstance(inst)
	if err != nil {
		inst.Seq = expected
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE wf_instances
		SET status = ?, seq = ?, doc = ?
		WHERE id = ? AND seq = ?`,
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

	affected, err := res.RowsAffected()
	if err != nil {
		inst.Seq = expected
		return err
	}
	if affected == 0 {
		inst.Seq = expected

		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM wf_instances WHERE id = ?`, inst.ID).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return ErrInstanceNotFound
		}
		return ErrVersionConflict
	}

	return nil
}

func (s *SQLiteStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM wf_instances WHERE id = ?`, id)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return decodeInstance(doc)
}

func (s *SQLiteStore) ListInstances(ctx context.Context, f InstanceFilter) ([]*api.WorkflowInstance, error) {
	query := `SELECT doc FROM wf_instances`
	var args []any
	var clauses []string

	if f.Tenant != "" {
		clauses = append(clauses, "tenant = ?")
		args = append(args, f.Tenant)
	}
	if f.WorkflowID != "" {
		clauses = append(clauses, "workflow_id = ?")
		args = append(args, f.WorkflowID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) CountActive(ctx context.Context, workflowID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wf_instances
		WHERE workflow_id = ? AND status IN (?, ?, ?)`,
		workflowID,
		string(api.InstancePending),
		string(api.InstanceRunning),
		string(api.InstanceSuspended),
	).Scan(&n)
	return n, err
}
