package domain

import (
	"crypto/rand"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ban is one entry of the session ban list.
type Ban struct {
	PlayerID  string    `json:"player_id"`
	Reason    string    `json:"reason"`
	BannedAt  time.Time `json:"banned_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero = permanent
}

func (b Ban) Permanent() bool { return b.ExpiresAt.IsZero() }

func (b Ban) Expired(now time.Time) bool {
	return !b.Permanent() && !now.Before(b.ExpiresAt)
}

// RemainingMinutes rounds the remaining duration of a temporary ban up to
// whole minutes. Permanent bans report 0.
func (b Ban) RemainingMinutes(now time.Time) int {
	if b.Permanent() {
		return 0
	}
	d := b.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

// NewMigrationID returns a fresh random migration identifier.
func NewMigrationID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:MigrationIDLength]
}

const sessionIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewSessionID returns a short random alphanumeric session ID.
func NewSessionID(length int) string {
	if length <= 0 {
		length = DefaultSessionIDLength
	}
	buf := make([]byte, length)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = sessionIDAlphabet[int(buf[i])%len(sessionIDAlphabet)]
	}
	return string(buf)
}
