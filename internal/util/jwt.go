package util

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// EmployeeClaims are the claims the attendance UI presents on each call.
// Identity resolution happens in the external employee directory; this
// service only needs the employee ID and device info carried here.
type EmployeeClaims struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	DeviceInfo string    `json:"device_info,omitempty"`

	jwt.RegisteredClaims
}

// JWTConfig holds token verification settings.
type JWTConfig struct {
	SigningKey    string
	Issuer        string
	TokenDuration time.Duration
}

// JWTManager issues and verifies the employee bearer tokens used by the
// attendance UI.
type JWTManager struct {
	cfg JWTConfig
}

func NewJWTManager(cfg JWTConfig) *JWTManager {
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 12 * time.Hour
	}
	return &JWTManager{cfg: cfg}
}

// Issue creates a signed token for an employee session.
func (m *JWTManager) Issue(employeeID uuid.UUID, deviceInfo string) (string, error) {
	now := time.Now()
	claims := EmployeeClaims{
		EmployeeID: employeeID,
		DeviceInfo: deviceInfo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.cfg.SigningKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token.
func (m *JWTManager) Verify(tokenString string) (*EmployeeClaims, error) {
	claims := &EmployeeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(m.cfg.SigningKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
