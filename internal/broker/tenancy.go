package broker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/tenant"
)

// ListProjects implements the "list_projects" operation.
func (b *Broker) ListProjects(ctx context.Context, organizationID int64) Result[[]*model.Project] {
	projects, err := b.store.ListProjects(ctx, organizationID)
	if err != nil {
		return fail[[]*model.Project](fmt.Errorf("broker: list projects: %w", err))
	}
	return ok(projects)
}

// CreateProjectRequest is the "create_project" operation's input DTO.
type CreateProjectRequest struct {
	OrganizationID int64   `json:"organization_id" validate:"required"`
	Name           string  `json:"name" validate:"required,max=200"`
	LocalPath      *string `json:"local_path,omitempty"`
	OriginURL      *string `json:"origin_url,omitempty"`
	Description    *string `json:"description,omitempty"`
}

// CreateProject implements the "create_project" operation.
func (b *Broker) CreateProject(ctx context.Context, req CreateProjectRequest) Result[*model.Project] {
	if r, ok := validated[*model.Project](b, req); !ok {
		return r
	}
	created, err := b.store.CreateProject(ctx, &model.Project{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		LocalPath:      req.LocalPath,
		OriginURL:      req.OriginURL,
		Description:    req.Description,
	})
	if err != nil {
		return fail[*model.Project](fmt.Errorf("broker: create project: %w", err))
	}
	return ok(created)
}

// APIKeyIssued is returned only at creation/rotation time: it is the
// only point at which the raw key material is ever visible, since
// CreateAPICredential only persists its bcrypt hash and prefix.
type APIKeyIssued struct {
	Credential *model.APICredential `json:"credential"`
	RawKey     string               `json:"raw_key"`
}

// CreateAPIKeyRequest is the "create_api_key" operation's input DTO.
type CreateAPIKeyRequest struct {
	OrganizationID int64  `json:"organization_id" validate:"required"`
	ProjectID      int64  `json:"project_id" validate:"required"`
	Name           string `json:"name" validate:"required,max=200"`
}

// CreateAPIKey implements the "create_api_key" operation.
func (b *Broker) CreateAPIKey(ctx context.Context, req CreateAPIKeyRequest) Result[*APIKeyIssued] {
	if r, ok := validated[*APIKeyIssued](b, req); !ok {
		return r
	}
	issued, err := b.issueCredential(ctx, req.OrganizationID, req.ProjectID, req.Name)
	if err != nil {
		return fail[*APIKeyIssued](err)
	}
	return ok(issued)
}

// ListAPIKeys implements the "list_api_keys" operation. Raw key material
// is never returned; only the hashed credential rows (KeyHash is
// json:"-").
func (b *Broker) ListAPIKeys(ctx context.Context, organizationID, projectID int64) Result[[]*model.APICredential] {
	creds, err := b.store.ListAPICredentials(ctx, organizationID, projectID)
	if err != nil {
		return fail[[]*model.APICredential](fmt.Errorf("broker: list api keys: %w", err))
	}
	return ok(creds)
}

// RevokeAPIKey implements the "revoke_api_key" operation.
func (b *Broker) RevokeAPIKey(ctx context.Context, organizationID, credentialID int64) Result[bool] {
	if err := b.store.RevokeAPICredential(ctx, organizationID, credentialID); err != nil {
		return fail[bool](fmt.Errorf("broker: revoke api key: %w", err))
	}
	return ok(true)
}

// RotateAPIKeyRequest is the "rotate_api_key" operation's input DTO.
type RotateAPIKeyRequest struct {
	OrganizationID int64  `json:"organization_id" validate:"required"`
	ProjectID      int64  `json:"project_id" validate:"required"`
	CredentialID   int64  `json:"credential_id" validate:"required"`
	Name           string `json:"name" validate:"required,max=200"`
}

// RotateAPIKey implements the "rotate_api_key" operation: revokes the
// old credential and issues a fresh one, since credentials are
// immutable once created.
func (b *Broker) RotateAPIKey(ctx context.Context, req RotateAPIKeyRequest) Result[*APIKeyIssued] {
	if r, ok := validated[*APIKeyIssued](b, req); !ok {
		return r
	}
	if err := b.store.RevokeAPICredential(ctx, req.OrganizationID, req.CredentialID); err != nil {
		return fail[*APIKeyIssued](fmt.Errorf("broker: rotate api key: revoke: %w", err))
	}
	issued, err := b.issueCredential(ctx, req.OrganizationID, req.ProjectID, req.Name)
	if err != nil {
		return fail[*APIKeyIssued](err)
	}
	return ok(issued)
}

func (b *Broker) issueCredential(ctx context.Context, organizationID, projectID int64, name string) (*APIKeyIssued, error) {
	prefix, secret, err := generateKeyParts()
	if err != nil {
		return nil, fmt.Errorf("broker: generate key: %w", err)
	}
	rawKey := prefix + "." + secret
	hash, err := tenant.HashKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("broker: hash key: %w", err)
	}
	cred, err := b.store.CreateAPICredential(ctx, &model.APICredential{
		ProjectID:      projectID,
		OrganizationID: organizationID,
		Name:           name,
		KeyHash:        hash,
		KeyPrefix:      prefix,
		Enabled:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: create api credential: %w", err)
	}
	return &APIKeyIssued{Credential: cred, RawKey: rawKey}, nil
}

// generateKeyParts builds a lookup prefix and secret for a fresh API
// key; the prefix is stored in the clear for indexed lookup, the
// secret never is. The prefix is a UUID rather than derived secret
// material, since it doubles as the credential's public identifier.
func generateKeyParts() (prefix, secret string, err error) {
	prefix = uuid.NewString()
	s := make([]byte, 24)
	if _, err := rand.Read(s); err != nil {
		return "", "", err
	}
	return prefix, hex.EncodeToString(s), nil
}
