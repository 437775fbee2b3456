package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/invoq-hq/be-approvals/internal/httpclient"
	"github.com/invoq-hq/be-approvals/internal/repository"
)

// rolePrefix marks an approver entry that names a role rather than a user.
// "role:FINANCE_MANAGER" admits any user holding FINANCE_MANAGER for the
// entity; plain entries are matched as user ids.
const rolePrefix = "role:"

// SnapshotIdentityResolver authorizes purely by membership in the snapshotted
// approver set. It is the engine default when no identity service is
// configured, and cannot resolve role-form approver entries.
type SnapshotIdentityResolver struct{}

// IsApprover reports whether actorID appears in the step's approver set.
func (SnapshotIdentityResolver) IsApprover(_ context.Context, _ string, actorID string, step repository.Step) (bool, error) {
	for _, p := range step.Approvers {
		if p == actorID {
			return true, nil
		}
	}
	return false, nil
}

// Roles returns nothing: without an identity service no actor holds roles.
func (SnapshotIdentityResolver) Roles(context.Context, string, string) ([]string, error) {
	return nil, nil
}

// IdentityClient resolves approver membership against the platform identity
// service, so steps can name roles as well as concrete user ids.
type IdentityClient struct {
	client *httpclient.Client
}

// NewIdentityClient creates an identity service client.
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{client: httpclient.NewClient(baseURL)}
}

type userRolesResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// IsApprover reports whether the actor is named directly in the step's
// approver set, or holds one of the roles the set names. Role lookups are
// only issued when the step actually contains role entries.
func (c *IdentityClient) IsApprover(ctx context.Context, entityID, actorID string, step repository.Step) (bool, error) {
	var roleEntries []string
	for _, p := range step.Approvers {
		if p == actorID {
			return true, nil
		}
		if strings.HasPrefix(p, rolePrefix) {
			roleEntries = append(roleEntries, strings.TrimPrefix(p, rolePrefix))
		}
	}
	if len(roleEntries) == 0 {
		return false, nil
	}

	held, err := c.Roles(ctx, entityID, actorID)
	if err != nil {
		return false, err
	}
	heldSet := make(map[string]struct{}, len(held))
	for _, r := range held {
		heldSet[r] = struct{}{}
	}
	for _, r := range roleEntries {
		if _, ok := heldSet[r]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Roles returns the roles the actor holds for the entity.
func (c *IdentityClient) Roles(ctx context.Context, entityID, actorID string) ([]string, error) {
	path := fmt.Sprintf("/api/v1/identity/roles?user_id=%s&entity_id=%s",
		url.QueryEscape(actorID), url.QueryEscape(entityID))

	var resp userRolesResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve user roles: %w", err)
	}
	return resp.Roles, nil
}
