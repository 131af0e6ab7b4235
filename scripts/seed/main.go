// Command seed provisions an organization, project, default role, and
// first API credential directly against the task broker's store.
//
// Usage:
//
//	go run ./scripts/seed -org "Acme Inc" -project "backend" -role-name admin
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/agentbroker/taskbroker/internal/config"
	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store"
	"github.com/agentbroker/taskbroker/internal/store/postgres"
	"github.com/agentbroker/taskbroker/internal/store/sqlite"
	"github.com/agentbroker/taskbroker/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	orgName := flag.String("org", "", "organization name to create")
	projectName := flag.String("project", "default", "project name to create within the organization")
	roleName := flag.String("role-name", "admin", "name of the default role to create")
	permissions := flag.String("permissions", "*:*", "comma-separated permission strings for the default role")
	credentialName := flag.String("credential-name", "seed-key", "name of the initial API credential")
	flag.Parse()

	if *orgName == "" {
		return fmt.Errorf("-org is required")
	}

	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("TASKBROKER_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	log.Printf("creating organization %q...", *orgName)
	org, err := s.CreateOrganization(ctx, *orgName)
	if err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}
	log.Printf("organization created: id=%d", org.ID)

	log.Printf("creating project %q...", *projectName)
	project, err := s.CreateProject(ctx, &model.Project{
		OrganizationID: org.ID,
		Name:           *projectName,
	})
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	log.Printf("project created: id=%d", project.ID)

	log.Printf("creating role %q...", *roleName)
	role, err := s.CreateRole(ctx, &model.Role{
		OrganizationID: org.ID,
		Name:           *roleName,
		Permissions:    splitPermissions(*permissions),
	})
	if err != nil {
		return fmt.Errorf("creating role: %w", err)
	}
	log.Printf("role created: id=%d permissions=%v", role.ID, role.Permissions)

	log.Println("issuing API credential...")
	rawKey, err := issueCredential(ctx, s, org.ID, project.ID, *credentialName)
	if err != nil {
		return fmt.Errorf("issuing credential: %w", err)
	}

	log.Println("seed complete")
	log.Printf("organization_id=%d project_id=%d", org.ID, project.ID)
	fmt.Printf("API key (save this — it is never shown again): %s\n", rawKey)
	return nil
}

// issueCredential mirrors BrokerAPI.issueCredential: random prefix and
// secret, bcrypt-hashed before storage, raw key returned exactly once.
func issueCredential(ctx context.Context, s store.Store, organizationID, projectID int64, name string) (string, error) {
	p := make([]byte, 6)
	if _, err := rand.Read(p); err != nil {
		return "", err
	}
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	rawKey := hex.EncodeToString(p) + "." + hex.EncodeToString(secret)

	hash, err := tenant.HashKey(rawKey)
	if err != nil {
		return "", err
	}

	_, err = s.CreateAPICredential(ctx, &model.APICredential{
		ProjectID:      projectID,
		OrganizationID: organizationID,
		Name:           name,
		KeyHash:        hash,
		KeyPrefix:      hex.EncodeToString(p),
		Enabled:        true,
	})
	if err != nil {
		return "", err
	}
	return rawKey, nil
}

func splitPermissions(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Dialect {
	case "postgres":
		return postgres.Open(ctx, cfg.URL, logger)
	default:
		return sqlite.Open(ctx, cfg.URL, logger)
	}
}
