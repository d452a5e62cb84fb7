package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// SessionStatus represents the current state of a game session
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"   // Accepting players
	SessionClosed SessionStatus = "closed" // Closed by facilitator or expired
)

// sessionCodeAlphabet is the character set for facilitator event codes
const sessionCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultSessionCodeLength is the length of generated event codes
const DefaultSessionCodeLength = 6

// GameSession is a facilitator-hosted event that many players join with one code.
type GameSession struct {
	ID          string        `json:"id"`
	Code        string        `json:"code"`
	Edition     string        `json:"edition"`
	Status      SessionStatus `json:"status"`
	PlayerCount int           `json:"player_count"`
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	ClosedAt    *time.Time    `json:"closed_at,omitempty"`
}

// IsOpen returns true if players may still join and play
func (s *GameSession) IsOpen() bool {
	return s.Status == SessionOpen && !s.IsExpired()
}

// IsExpired checks if the session TTL has elapsed
func (s *GameSession) IsExpired() bool {
	if s.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*s.ExpiresAt)
}

// NormalizeSessionCode upper-cases and trims a user-typed code
func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateSessionCode creates a random code of uppercase letters and digits
func GenerateSessionCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultSessionCodeLength
	}
	max := big.NewInt(int64(len(sessionCodeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate session code: %w", err)
		}
		b.WriteByte(sessionCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CreateSessionRequest represents a facilitator request to open a session
type CreateSessionRequest struct {
	Edition string `json:"edition,omitempty"` // defaults to the configured edition
	TTL     int    `json:"ttl,omitempty"`     // seconds, 0 = configured default
}

// JoinRequest is sent by a player entering a session code
type JoinRequest struct {
	Username string `json:"username"`
}

// JoinResponse carries the player token used on all /play routes
type JoinResponse struct {
	Token   string       `json:"token"`
	Resumed bool         `json:"resumed"`
	Session *GameSession `json:"session"`
	Path    *PlayerPath  `json:"path"`
}
