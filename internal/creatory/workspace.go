package creatory

import "time"

// MembershipRole is a user's role within a workspace.
type MembershipRole string

const (
	RoleOwner  MembershipRole = "owner"
	RoleAdmin  MembershipRole = "admin"
	RoleEditor MembershipRole = "editor"
	RoleViewer MembershipRole = "viewer"
)

// Workspace is the tenancy boundary for all creator data.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership grants a user a role in a workspace.
type Membership struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	UserID      string         `json:"user_id"`
	Role        MembershipRole `json:"role"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Conversation groups messages and runs in a workspace.
type Conversation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Agent is a configured persona. System agents have no workspace and are
// visible everywhere.
type Agent struct {
	ID            string         `json:"id"`
	WorkspaceID   *string        `json:"workspace_id,omitempty"`
	Name          string         `json:"name"`
	Slug          string         `json:"slug"`
	Description   string         `json:"description,omitempty"`
	PersonaPrompt string         `json:"persona_prompt,omitempty"`
	Config        map[string]any `json:"config_json"`
	IsSystem      bool           `json:"is_system"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Page is a window over a listing.
type Page struct {
	Limit  int
	Offset int
}
