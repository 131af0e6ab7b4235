package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) CreateOrganization(ctx context.Context, name string) (*model.Organization, error) {
	now := time.Now().UTC()
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO organizations (name, created_at, updated_at) VALUES (?, ?, ?)`, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create organization: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create organization: last insert id: %w", err)
	}
	return &model.Organization{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *Store) CreateProject(ctx context.Context, p *model.Project) (*model.Project, error) {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO projects (organization_id, name, local_path, origin_url, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.OrganizationID, p.Name, p.LocalPath, p.OriginURL, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create project: last insert id: %w", err)
	}
	p.ID = id
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context, organizationID int64) ([]*model.Project, error) {
	var projects []*model.Project
	err := s.conn(ctx).SelectContext(ctx, &projects, `
		SELECT id, organization_id, name, local_path, origin_url, description, created_at, updated_at
		FROM projects WHERE organization_id = ? ORDER BY name ASC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list projects: %w", err)
	}
	return projects, nil
}

func (s *Store) GetProject(ctx context.Context, organizationID, projectID int64) (*model.Project, error) {
	var p model.Project
	err := s.conn(ctx).GetContext(ctx, &p, `
		SELECT id, organization_id, name, local_path, origin_url, description, created_at, updated_at
		FROM projects WHERE id = ? AND organization_id = ?`, projectID, organizationID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *Store) CreateAPICredential(ctx context.Context, c *model.APICredential) (*model.APICredential, error) {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO api_credentials (project_id, organization_id, name, key_hash, key_prefix, enabled, last_used_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.OrganizationID, c.Name, c.KeyHash, c.KeyPrefix, boolVal(c.Enabled), c.LastUsedAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create api credential: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create api credential: last insert id: %w", err)
	}
	c.ID = id
	return c, nil
}

type credentialRow struct {
	ID             int64      `db:"id"`
	ProjectID      int64      `db:"project_id"`
	OrganizationID int64      `db:"organization_id"`
	Name           string     `db:"name"`
	KeyHash        string     `db:"key_hash"`
	KeyPrefix      string     `db:"key_prefix"`
	Enabled        int        `db:"enabled"`
	LastUsedAt     *time.Time `db:"last_used_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func (row credentialRow) toModel() *model.APICredential {
	return &model.APICredential{
		ID: row.ID, ProjectID: row.ProjectID, OrganizationID: row.OrganizationID, Name: row.Name,
		KeyHash: row.KeyHash, KeyPrefix: row.KeyPrefix, Enabled: boolCol(row.Enabled),
		LastUsedAt: row.LastUsedAt, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
}

const credentialColumns = `id, project_id, organization_id, name, key_hash, key_prefix, enabled, last_used_at, created_at, updated_at`

func (s *Store) ListAPICredentials(ctx context.Context, organizationID, projectID int64) ([]*model.APICredential, error) {
	var rows []credentialRow
	err := s.conn(ctx).SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT %s FROM api_credentials WHERE organization_id = ? AND project_id = ? ORDER BY created_at ASC`, credentialColumns),
		organizationID, projectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list api credentials: %w", err)
	}
	out := make([]*model.APICredential, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) GetAPICredentialByPrefix(ctx context.Context, keyPrefix string) (*model.APICredential, error) {
	var row credentialRow
	err := s.conn(ctx).GetContext(ctx, &row, fmt.Sprintf(`
		SELECT %s FROM api_credentials WHERE key_prefix = ? AND enabled = 1`, credentialColumns), keyPrefix)
	if err != nil {
		return nil, wrapErr(err)
	}
	return row.toModel(), nil
}

func (s *Store) RevokeAPICredential(ctx context.Context, organizationID, credentialID int64) error {
	// Idempotent: revoking an already-disabled or nonexistent credential
	// in this org is not an error.
	_, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE api_credentials SET enabled = 0, updated_at = ? WHERE id = ? AND organization_id = ?`,
		time.Now().UTC(), credentialID, organizationID)
	if err != nil {
		return fmt.Errorf("sqlite: revoke api credential: %w", err)
	}
	return nil
}

func (s *Store) TouchAPICredential(ctx context.Context, credentialID int64) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE api_credentials SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), credentialID)
	if err != nil {
		return fmt.Errorf("sqlite: touch api credential: %w", err)
	}
	return nil
}

func (s *Store) CreateTeam(ctx context.Context, t *model.Team) (*model.Team, error) {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO teams (organization_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		t.OrganizationID, t.Name, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create team: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create team: last insert id: %w", err)
	}
	t.ID = id
	return t, nil
}

func (s *Store) CreateRole(ctx context.Context, r *model.Role) (*model.Role, error) {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create role: marshal permissions: %w", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO roles (organization_id, name, permissions, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		r.OrganizationID, r.Name, perms, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create role: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create role: last insert id: %w", err)
	}
	r.ID = id
	return r, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *model.Membership) (*model.Membership, error) {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	roleIDs, err := json.Marshal(m.RoleIDs)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create membership: marshal role ids: %w", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO memberships (organization_id, team_id, user_identity, role_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.OrganizationID, m.TeamID, m.UserIdentity, roleIDs, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create membership: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create membership: last insert id: %w", err)
	}
	m.ID = id
	return m, nil
}

func (s *Store) ListRolesForMembership(ctx context.Context, organizationID int64, userIdentity string) ([]*model.Role, error) {
	var roleIDsJSON []byte
	err := s.conn(ctx).GetContext(ctx, &roleIDsJSON, `
		SELECT role_ids FROM memberships WHERE organization_id = ? AND user_identity = ?`,
		organizationID, userIdentity)
	if err != nil {
		return nil, wrapErr(err)
	}
	var roleIDs []int64
	if len(roleIDsJSON) > 0 {
		if err := json.Unmarshal(roleIDsJSON, &roleIDs); err != nil {
			return nil, fmt.Errorf("sqlite: list roles for membership: unmarshal role ids: %w", err)
		}
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlxIn(`SELECT id, organization_id, name, permissions, created_at, updated_at
		FROM roles WHERE organization_id = ? AND id IN (?)`, organizationID, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list roles for membership: build query: %w", err)
	}
	type roleRow struct {
		ID             int64     `db:"id"`
		OrganizationID int64     `db:"organization_id"`
		Name           string    `db:"name"`
		Permissions    []byte    `db:"permissions"`
		CreatedAt      time.Time `db:"created_at"`
		UpdatedAt      time.Time `db:"updated_at"`
	}
	var rows []roleRow
	if err := s.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: list roles for membership: %w", err)
	}
	out := make([]*model.Role, 0, len(rows))
	for _, r := range rows {
		role := &model.Role{ID: r.ID, OrganizationID: r.OrganizationID, Name: r.Name, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
		if len(r.Permissions) > 0 {
			_ = json.Unmarshal(r.Permissions, &role.Permissions)
		}
		out = append(out, role)
	}
	return out, nil
}
