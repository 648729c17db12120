package api

import (
	"github.com/wardenhq/warden/pkg/policy"
	"github.com/wardenhq/warden/pkg/store"
)

type createEntityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateEntityRequest struct {
	Description *string `json:"description"`
}

type rolePageResponse struct {
	Items     []store.Role `json:"items"`
	NextToken string       `json:"next_token,omitempty"`
}

type permissionPageResponse struct {
	Items     []store.Permission `json:"items"`
	NextToken string             `json:"next_token,omitempty"`
}

type assignRequest struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

type membersResponse struct {
	Members []string `json:"members"`
}

// deleteResponse reports a delete that may have left cascade work behind.
// Warning is empty on a clean delete.
type deleteResponse struct {
	Status    string `json:"status"`
	Warning   string `json:"warning,omitempty"`
	Removed   int    `json:"edges_removed,omitempty"`
	Remaining int    `json:"edges_remaining,omitempty"`
}

type createPolicyRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Definition  string            `json:"definition"`
	Language    string            `json:"language"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type updatePolicyRequest struct {
	Name        *string           `json:"name"`
	Definition  *string           `json:"definition"`
	Language    *string           `json:"language"`
	Description *string           `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type policyListResponse struct {
	Items []policy.Version `json:"items"`
}

type publishResponse struct {
	Key string `json:"key"`
}
