package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// challengeStore is the slice of the Redis client the authenticator needs.
type challengeStore interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetDelJSON(ctx context.Context, key string, dest interface{}) error
}

type challengeRecord struct {
	Challenge  string    `json:"challenge"` // base64
	EmployeeID uuid.UUID `json:"employee_id"`
	Purpose    string    `json:"purpose"` // "register" | "authenticate"
	IssuedAt   time.Time `json:"issued_at"`
}

func challengeKey(employeeID uuid.UUID, purpose string) string {
	return fmt.Sprintf("hwcred:challenge:%s:%s", purpose, employeeID)
}

func newChallenge(size int) (string, error) {
	if size < 32 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func (a *Authenticator) issueChallenge(ctx context.Context, employeeID uuid.UUID, purpose string) (string, error) {
	challenge, err := newChallenge(a.cfg.ChallengeSize)
	if err != nil {
		return "", err
	}
	rec := challengeRecord{
		Challenge:  challenge,
		EmployeeID: employeeID,
		Purpose:    purpose,
		IssuedAt:   time.Now().UTC(),
	}
	if err := a.store.SetJSON(ctx, challengeKey(employeeID, purpose), rec, a.cfg.ChallengeTTL); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return challenge, nil
}

// popChallenge consumes the outstanding challenge. Each challenge is
// single-use: the read deletes it, so a replayed response finds nothing.
func (a *Authenticator) popChallenge(ctx context.Context, employeeID uuid.UUID, purpose string) (*challengeRecord, error) {
	var rec challengeRecord
	err := a.store.GetDelJSON(ctx, challengeKey(employeeID, purpose), &rec)
	if err == redis.Nil {
		return nil, ErrChallengeExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	return &rec, nil
}
