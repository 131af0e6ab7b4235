package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentbroker/taskbroker/internal/model"
)

func (s *Store) CreateOrganization(ctx context.Context, name string) (*model.Organization, error) {
	var o model.Organization
	o.Name = name
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO organizations (name, created_at, updated_at) VALUES ($1, now(), now())
		RETURNING id, created_at, updated_at`, name).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create organization: %w", err)
	}
	return &o, nil
}

func (s *Store) CreateProject(ctx context.Context, p *model.Project) (*model.Project, error) {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO projects (organization_id, name, local_path, origin_url, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now()) RETURNING id, created_at, updated_at`,
		p.OrganizationID, p.Name, p.LocalPath, p.OriginURL, p.Description).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create project: %w", err)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context, organizationID int64) ([]*model.Project, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, organization_id, name, local_path, origin_url, description, created_at, updated_at
		FROM projects WHERE organization_id = $1 ORDER BY name ASC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list projects: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.Project])
}

func (s *Store) GetProject(ctx context.Context, organizationID, projectID int64) (*model.Project, error) {
	row := s.conn(ctx).QueryRow(ctx, `
		SELECT id, organization_id, name, local_path, origin_url, description, created_at, updated_at
		FROM projects WHERE id = $1 AND organization_id = $2`, projectID, organizationID)
	p, err := pgx.RowToStructByNameLax[model.Project](row)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *Store) CreateAPICredential(ctx context.Context, c *model.APICredential) (*model.APICredential, error) {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO api_credentials (project_id, organization_id, name, key_hash, key_prefix, enabled, last_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now()) RETURNING id, created_at, updated_at`,
		c.ProjectID, c.OrganizationID, c.Name, c.KeyHash, c.KeyPrefix, c.Enabled, c.LastUsedAt).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create api credential: %w", err)
	}
	return c, nil
}

const credentialColumns = `id, project_id, organization_id, name, key_hash, key_prefix, enabled, last_used_at, created_at, updated_at`

func (s *Store) ListAPICredentials(ctx context.Context, organizationID, projectID int64) ([]*model.APICredential, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+credentialColumns+`
		FROM api_credentials WHERE organization_id = $1 AND project_id = $2 ORDER BY created_at ASC`,
		organizationID, projectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list api credentials: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[model.APICredential])
}

func (s *Store) GetAPICredentialByPrefix(ctx context.Context, keyPrefix string) (*model.APICredential, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+credentialColumns+`
		FROM api_credentials WHERE key_prefix = $1 AND enabled = true`, keyPrefix)
	c, err := pgx.RowToStructByNameLax[model.APICredential](row)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &c, nil
}

func (s *Store) RevokeAPICredential(ctx context.Context, organizationID, credentialID int64) error {
	// Idempotent: revoking an already-disabled or nonexistent credential
	// in this org is not an error.
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE api_credentials SET enabled = false, updated_at = now() WHERE id = $1 AND organization_id = $2`,
		credentialID, organizationID)
	if err != nil {
		return fmt.Errorf("postgres: revoke api credential: %w", err)
	}
	return nil
}

func (s *Store) TouchAPICredential(ctx context.Context, credentialID int64) error {
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE api_credentials SET last_used_at = now() WHERE id = $1`, credentialID)
	if err != nil {
		return fmt.Errorf("postgres: touch api credential: %w", err)
	}
	return nil
}

func (s *Store) CreateTeam(ctx context.Context, t *model.Team) (*model.Team, error) {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO teams (organization_id, name, created_at, updated_at) VALUES ($1, $2, now(), now())
		RETURNING id, created_at, updated_at`, t.OrganizationID, t.Name).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create team: %w", err)
	}
	return t, nil
}

func (s *Store) CreateRole(ctx context.Context, r *model.Role) (*model.Role, error) {
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return nil, fmt.Errorf("postgres: create role: marshal permissions: %w", err)
	}
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO roles (organization_id, name, permissions, created_at, updated_at) VALUES ($1, $2, $3, now(), now())
		RETURNING id, created_at, updated_at`, r.OrganizationID, r.Name, perms).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create role: %w", err)
	}
	return r, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *model.Membership) (*model.Membership, error) {
	roleIDs, err := json.Marshal(m.RoleIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: create membership: marshal role ids: %w", err)
	}
	err = s.conn(ctx).QueryRow(ctx, `
		INSERT INTO memberships (organization_id, team_id, user_identity, role_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now()) RETURNING id, created_at, updated_at`,
		m.OrganizationID, m.TeamID, m.UserIdentity, roleIDs).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: create membership: %w", err)
	}
	return m, nil
}

func (s *Store) ListRolesForMembership(ctx context.Context, organizationID int64, userIdentity string) ([]*model.Role, error) {
	var roleIDsJSON []byte
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT role_ids FROM memberships WHERE organization_id = $1 AND user_identity = $2`,
		organizationID, userIdentity).Scan(&roleIDsJSON)
	if err != nil {
		return nil, wrapErr(err)
	}
	var roleIDs []int64
	if len(roleIDsJSON) > 0 {
		if err := json.Unmarshal(roleIDsJSON, &roleIDs); err != nil {
			return nil, fmt.Errorf("postgres: list roles for membership: unmarshal role ids: %w", err)
		}
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, organization_id, name, permissions, created_at, updated_at
		FROM roles WHERE organization_id = $1 AND id = ANY($2)`, organizationID, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list roles for membership: %w", err)
	}
	type roleRow struct {
		ID             int64     `db:"id"`
		OrganizationID int64     `db:"organization_id"`
		Name           string    `db:"name"`
		Permissions    []byte    `db:"permissions"`
		CreatedAt      time.Time `db:"created_at"`
		UpdatedAt      time.Time `db:"updated_at"`
	}
	rowObjs, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[roleRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: list roles for membership: %w", err)
	}
	out := make([]*model.Role, 0, len(rowObjs))
	for _, r := range rowObjs {
		role := &model.Role{ID: r.ID, OrganizationID: r.OrganizationID, Name: r.Name, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
		if len(r.Permissions) > 0 {
			_ = json.Unmarshal(r.Permissions, &role.Permissions)
		}
		out = append(out, role)
	}
	return out, nil
}
