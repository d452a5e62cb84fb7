package models

import (
	"strings"
	"time"
)

// Facilitator permissions
const (
	PermSessionsRead    = "sessions:read"
	PermSessionsWrite   = "sessions:write"
	PermLeaderboardRead = "leaderboard:read"
	PermAll             = "*"
)

// ApiClient is a facilitator (or integration) authenticated by API key
type ApiClient struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	ApiKey      string     `json:"-"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Permissions []string   `json:"permissions"`
}

// HasPermission checks a permission; "sessions:*" style and "*" wildcards are honoured
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}
	resource, _, _ := strings.Cut(required, ":")
	for _, perm := range c.Permissions {
		switch perm {
		case required, PermAll, resource + ":*":
			return true
		}
	}
	return false
}

// MaskedApiKey returns the key prefix for logging
func (c *ApiClient) MaskedApiKey() string {
	return MaskKey(c.ApiKey)
}

// MaskKey keeps the first 8 characters of a secret
func MaskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
