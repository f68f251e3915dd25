package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is an operator account on the moat service.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Token is an issued JWT kept for revocation bookkeeping.
type Token struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// APIKey authenticates non-interactive clients (CI jobs, IDE plugins).
// Only the bcrypt hash is stored; the key value is shown once.
type APIKey struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	UserID      string    `json:"user_id"`
	KeyPrefix   string    `json:"key_prefix"`
	KeyHash     string    `json:"-"`
	Permissions []string  `json:"permissions"`
	IsActive    bool      `json:"is_active"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used,omitempty"`
}

// Role groups permissions under a name.
type Role struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// Permission is a resource:action pair.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
}

// Claims are the JWT claims issued on login.
type Claims struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	User      User   `json:"user"`
}

// CreateAPIKeyRequest asks for a new API key.
type CreateAPIKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiresIn   int64    `json:"expires_in,omitempty"` // seconds
}

// CreateAPIKeyResponse returns the key value exactly once.
type CreateAPIKeyResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Key       string     `json:"key"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ChangePasswordRequest rotates a user's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// PreDefinedRoles are the built-in roles.
var PreDefinedRoles = map[string]Role{
	"admin": {
		Name:        "admin",
		Description: "Full access to every resource",
		Permissions: []string{"*:*"},
	},
	"user": {
		Name:        "user",
		Description: "Record patterns, run safety checks, read own analytics",
		Permissions: []string{"patterns:read", "patterns:write", "safety:check", "moat:read"},
	},
	"viewer": {
		Name:        "viewer",
		Description: "Read-only access to patterns and analytics",
		Permissions: []string{"patterns:read", "moat:read"},
	},
	"service": {
		Name:        "service",
		Description: "Machine account for IDE and CI/CD integrations",
		Permissions: []string{"patterns:*", "safety:*", "moat:read"},
	},
}

// PreDefinedPermissions enumerates every grantable permission.
var PreDefinedPermissions = []Permission{
	{Name: "patterns:read", Description: "Read failure and success patterns", Resource: "patterns", Action: "read"},
	{Name: "patterns:write", Description: "Record and resolve patterns", Resource: "patterns", Action: "write"},
	{Name: "safety:check", Description: "Run safety scans", Resource: "safety", Action: "check"},
	{Name: "moat:read", Description: "Read lock-in, churn, and infrastructure analytics", Resource: "moat", Action: "read"},
	{Name: "*:*", Description: "All permissions", Resource: "*", Action: "*"},
}
