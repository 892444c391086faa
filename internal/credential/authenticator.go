// Package credential implements the hardware-credential registration and
// authentication protocol: public-key challenge/response with a monotonic
// signature counter for clone detection.
package credential

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/models"
	"github.com/veritime/attendance-service/internal/repository"
	"github.com/veritime/attendance-service/internal/util/logger"
)

var (
	ErrChallengeExpired        = errors.New("challenge missing or expired")
	ErrInvalidState            = errors.New("credential already registered")
	ErrUnsupportedAlgorithm    = errors.New("authenticator algorithm not supported")
	ErrSignatureInvalid        = errors.New("signature verification failed")
	ErrRelyingPartyMismatch    = errors.New("authenticator data bound to a different relying party")
	ErrCredentialNotFound      = errors.New("credential not registered for employee")
	ErrCredentialFlagged       = errors.New("credential flagged for administrative review")
	ErrPossibleCredentialClone = errors.New("signature counter regression, possible credential clone")
)

// authenticatorDataLen is rpIdHash(32) + flags(1) + signCount(4).
const authenticatorDataLen = 37

// RegistrationResponse is what the device authenticator returns after the
// user gesture during registration. All byte fields travel base64-encoded;
// their inner structure belongs to the platform authenticator contract.
type RegistrationResponse struct {
	CredentialID      string `json:"credential_id"`
	PublicKey         string `json:"public_key"` // base64 DER (PKIX)
	AuthenticatorData string `json:"authenticator_data"`
	Attestation       string `json:"attestation"` // signature over authData || SHA-256(challenge)
	DeviceLabel       string `json:"device_label"`
}

// AssertionResponse is the authenticator's answer to an authentication
// challenge.
type AssertionResponse struct {
	CredentialID      string `json:"credential_id"`
	AuthenticatorData string `json:"authenticator_data"`
	Signature         string `json:"signature"`
}

// Authenticator runs both phases of the protocol against the credential
// store. Challenges live in Redis with a TTL and are consumed on first use.
type Authenticator struct {
	repo  repository.CredentialRepository
	store challengeStore
	cfg   config.CredentialConfig
}

func NewAuthenticator(repo repository.CredentialRepository, store challengeStore, cfg config.CredentialConfig) *Authenticator {
	if cfg.ChallengeSize < 32 {
		cfg.ChallengeSize = 32
	}
	if cfg.ChallengeTTL == 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return &Authenticator{repo: repo, store: store, cfg: cfg}
}

// BeginRegistration issues a fresh registration challenge for the employee.
func (a *Authenticator) BeginRegistration(ctx context.Context, employeeID uuid.UUID) (string, error) {
	return a.issueChallenge(ctx, employeeID, "register")
}

// FinishRegistration verifies the attestation and stores the credential with
// the counter taken from the authenticator data. Registering a credential ID
// that already exists is ErrInvalidState; the user retries from Begin.
func (a *Authenticator) FinishRegistration(ctx context.Context, employeeID uuid.UUID, resp RegistrationResponse) (*models.HardwareCredential, error) {
	rec, err := a.popChallenge(ctx, employeeID, "register")
	if err != nil {
		return nil, err
	}

	if _, err := a.repo.GetByID(ctx, resp.CredentialID); err == nil {
		return nil, ErrInvalidState
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	pub, err := parsePublicKey(resp.PublicKey)
	if err != nil {
		return nil, err
	}

	authData, counter, err := a.parseAuthenticatorData(resp.AuthenticatorData)
	if err != nil {
		return nil, err
	}

	if err := verifySignature(pub, authData, rec.Challenge, resp.Attestation); err != nil {
		return nil, err
	}

	cred := &models.HardwareCredential{
		CredentialID:     resp.CredentialID,
		EmployeeID:       employeeID,
		PublicKey:        resp.PublicKey,
		SignatureCounter: counter,
		DeviceLabel:      resp.DeviceLabel,
		RegisteredAt:     time.Now().UTC(),
	}
	if err := a.repo.Create(ctx, cred); err != nil {
		return nil, err
	}

	logger.Infof("hardware credential %s registered for employee %s", resp.CredentialID, employeeID)
	return cred, nil
}

// BeginAuthentication issues a fresh authentication challenge.
func (a *Authenticator) BeginAuthentication(ctx context.Context, employeeID uuid.UUID) (string, error) {
	return a.issueChallenge(ctx, employeeID, "authenticate")
}

// FinishAuthentication verifies an assertion against the stored public key
// and enforces the strictly-increasing signature counter. A counter that
// does not advance flags the credential and fails hard: this path is never
// retried, the employee must re-register after administrative review.
func (a *Authenticator) FinishAuthentication(ctx context.Context, employeeID uuid.UUID, resp AssertionResponse) (*models.HardwareCredential, error) {
	rec, err := a.popChallenge(ctx, employeeID, "authenticate")
	if err != nil {
		return nil, err
	}

	cred, err := a.repo.GetByID(ctx, resp.CredentialID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	if cred.EmployeeID != employeeID {
		return nil, ErrCredentialNotFound
	}
	if cred.FlaggedAt != nil {
		return nil, ErrCredentialFlagged
	}

	pub, err := parsePublicKey(cred.PublicKey)
	if err != nil {
		return nil, err
	}

	authData, counter, err := a.parseAuthenticatorData(resp.AuthenticatorData)
	if err != nil {
		return nil, err
	}

	if err := verifySignature(pub, authData, rec.Challenge, resp.Signature); err != nil {
		return nil, err
	}

	if counter <= cred.SignatureCounter {
		now := time.Now().UTC()
		if flagErr := a.repo.Flag(ctx, cred.CredentialID, now); flagErr != nil {
			logger.Errorf("failed to flag credential %s: %v", cred.CredentialID, flagErr)
		}
		logger.Warnf("counter regression on credential %s: got %d, stored %d",
			cred.CredentialID, counter, cred.SignatureCounter)
		return nil, ErrPossibleCredentialClone
	}

	now := time.Now().UTC()
	if err := a.repo.UpdateCounter(ctx, cred.CredentialID, counter, now); err != nil {
		return nil, err
	}
	cred.SignatureCounter = counter
	cred.LastUsedAt = &now
	return cred, nil
}

// parseAuthenticatorData validates the fixed layout
// rpIdHash(32) || flags(1) || signCount(4, big-endian) and checks the
// relying-party binding.
func (a *Authenticator) parseAuthenticatorData(encoded string) ([]byte, uint32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, 0, fmt.Errorf("decode authenticator data: %w", err)
	}
	if len(raw) < authenticatorDataLen {
		return nil, 0, fmt.Errorf("authenticator data too short: %d bytes", len(raw))
	}

	if a.cfg.RelyingPartyID != "" {
		want := sha256.Sum256([]byte(a.cfg.RelyingPartyID))
		var got [32]byte
		copy(got[:], raw[:32])
		if got != want {
			return nil, 0, ErrRelyingPartyMismatch
		}
	}

	counter := binary.BigEndian.Uint32(raw[33:37])
	return raw, counter, nil
}

func parsePublicKey(encoded string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrUnsupportedAlgorithm
	}
	return pub, nil
}

// verifySignature recomputes the signed payload,
// authData || SHA-256(challenge), and checks the ASN.1 ECDSA signature.
func verifySignature(pub *ecdsa.PublicKey, authData []byte, challenge, signature string) error {
	challengeRaw, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	clientHash := sha256.Sum256(challengeRaw)
	payload := append(append([]byte{}, authData...), clientHash[:]...)
	digest := sha256.Sum256(payload)

	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return ErrSignatureInvalid
	}
	return nil
}
