package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/models"
)

// DefaultOTPPurpose is used when a caller does not name a purpose.
const DefaultOTPPurpose = "email-verification"

var (
	// ErrOTPNotFound indicates no outstanding code for the email and purpose.
	ErrOTPNotFound = errors.New("otp not found")
	// ErrOTPCooldown indicates a code was issued too recently to send another.
	ErrOTPCooldown = errors.New("otp requested too recently")
	// ErrOTPAttemptsExceeded indicates the code was guessed wrong too many times. The code is discarded.
	ErrOTPAttemptsExceeded = errors.New("too many otp attempts")
	// ErrOTPExpired indicates the code is past its expiry. The code is discarded.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPInvalid indicates a code that does not match.
	ErrOTPInvalid = errors.New("invalid otp")
)

// OTPStore persists issued codes.
type OTPStore interface {
	// Replace stores otp and discards every earlier code for the same email and purpose.
	Replace(ctx context.Context, otp models.OTP) error
	Latest(ctx context.Context, email, purpose string) (models.OTP, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

// OTPMailer delivers a code to its recipient.
type OTPMailer interface {
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error
}

// OTPConfig controls code issuance.
type OTPConfig struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	Digits      int
}

// DefaultOTPConfig returns six digit codes valid for ten minutes with five attempts and a
// one minute resend cooldown.
func DefaultOTPConfig() OTPConfig {
	return OTPConfig{
		TTL:         10 * time.Minute,
		Cooldown:    time.Minute,
		MaxAttempts: 5,
		Digits:      6,
	}
}

// OTPService issues and verifies one-time codes.
type OTPService struct {
	store  OTPStore
	mailer OTPMailer
	cfg    OTPConfig

	now      func() time.Time
	generate func(digits int) (string, error)
}

// NewOTPService constructs an OTPService. Zero config fields take their defaults.
func NewOTPService(store OTPStore, mailer OTPMailer, cfg OTPConfig) *OTPService {
	defaults := DefaultOTPConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Digits <= 0 {
		cfg.Digits = defaults.Digits
	}
	return &OTPService{
		store:    store,
		mailer:   mailer,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		generate: generateCode,
	}
}

// WithNowFunc allows tests to override the time source.
func (s *OTPService) WithNowFunc(now func() time.Time) {
	s.now = now
}

// Send issues a new code for (email, purpose) and mails it. A code issued within the cooldown
// window fails with ErrOTPCooldown. Earlier codes stop verifying once a new one is issued.
func (s *OTPService) Send(ctx context.Context, email, purpose string) error {
	email, purpose = NormalizeEmail(email), normalizePurpose(purpose)
	now := s.now()

	latest, err := s.store.Latest(ctx, email, purpose)
	switch {
	case err == nil:
		if now.Sub(latest.CreatedAt) < s.cfg.Cooldown {
			return ErrOTPCooldown
		}
	case errors.Is(err, ErrOTPNotFound):
	default:
		return fmt.Errorf("lookup otp: %w", err)
	}

	code, err := s.generate(s.cfg.Digits)
	if err != nil {
		return err
	}

	record := models.OTP{
		ID:        uuid.NewString(),
		Email:     email,
		Purpose:   purpose,
		CodeHash:  hashCode(email, purpose, code),
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.store.Replace(ctx, record); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, email, code, s.cfg.TTL); err != nil {
		if delErr := s.store.Delete(ctx, record.ID); delErr != nil {
			logging.FromContext(ctx).Error("discard undelivered otp", "error", delErr)
		}
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// Verify checks code against the latest code for (email, purpose) and consumes it on success.
func (s *OTPService) Verify(ctx context.Context, email, code, purpose string) error {
	email, purpose = NormalizeEmail(email), normalizePurpose(purpose)

	record, err := s.store.Latest(ctx, email, purpose)
	if err != nil {
		return err
	}

	if record.Attempts >= s.cfg.MaxAttempts {
		if err := s.store.Delete(ctx, record.ID); err != nil {
			return fmt.Errorf("discard otp: %w", err)
		}
		return ErrOTPAttemptsExceeded
	}

	if !s.now().Before(record.ExpiresAt) {
		if err := s.store.Delete(ctx, record.ID); err != nil {
			return fmt.Errorf("discard otp: %w", err)
		}
		return ErrOTPExpired
	}

	expected := hashCode(email, purpose, strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(record.CodeHash)) != 1 {
		if _, err := s.store.IncrementAttempts(ctx, record.ID); err != nil {
			return fmt.Errorf("count otp attempt: %w", err)
		}
		return ErrOTPInvalid
	}

	if err := s.store.Delete(ctx, record.ID); err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePurpose(purpose string) string {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return DefaultOTPPurpose
	}
	return purpose
}

func hashCode(email, purpose, code string) string {
	sum := sha256.Sum256([]byte(purpose + ":" + email + ":" + code))
	return hex.EncodeToString(sum[:])
}

// generateCode creates a zero-padded numeric code using crypto/rand.
func generateCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

// ExpiredOTPPurger removes codes past their expiry.
type ExpiredOTPPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// OTPJanitor periodically purges expired codes that were never verified.
type OTPJanitor struct {
	store    ExpiredOTPPurger
	interval time.Duration
	now      func() time.Time
}

// NewOTPJanitor constructs a janitor that sweeps every interval.
func NewOTPJanitor(store ExpiredOTPPurger, interval time.Duration) *OTPJanitor {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &OTPJanitor{store: store, interval: interval, now: func() time.Time { return time.Now().UTC() }}
}

// Run sweeps until ctx is cancelled.
func (j *OTPJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs a single purge.
func (j *OTPJanitor) Sweep(ctx context.Context) {
	logger := logging.FromContext(ctx)
	removed, err := j.store.DeleteExpired(ctx, j.now())
	if err != nil {
		logger.Error("purge expired otps", "error", err)
		return
	}
	if removed > 0 {
		logger.Info("purged expired otps", "count", removed)
	}
}
