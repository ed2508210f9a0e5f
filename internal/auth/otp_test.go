package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/videostream/backend/internal/models"
)

type memoryOTPStore struct {
	mu      sync.Mutex
	records map[string]models.OTP
}

func newMemoryOTPStore() *memoryOTPStore {
	return &memoryOTPStore{records: make(map[string]models.OTP)}
}

func (s *memoryOTPStore) Replace(_ context.Context, otp models.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.records {
		if record.Email == otp.Email && record.Purpose == otp.Purpose {
			delete(s.records, id)
		}
	}
	s.records[otp.ID] = otp
	return nil
}

func (s *memoryOTPStore) Latest(_ context.Context, email, purpose string) (models.OTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []models.OTP
	for _, record := range s.records {
		if record.Email == email && record.Purpose == purpose {
			matches = append(matches, record)
		}
	}
	if len(matches) == 0 {
		return models.OTP{}, ErrOTPNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches[0], nil
}

func (s *memoryOTPStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return 0, ErrOTPNotFound
	}
	record.Attempts++
	s.records[id] = record
	return record.Attempts, nil
}

func (s *memoryOTPStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memoryOTPStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, record := range s.records {
		if record.ExpiresAt.Before(before) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryOTPStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type recordingMailer struct {
	to    string
	code  string
	calls int
	err   error
}

func (m *recordingMailer) SendOTP(_ context.Context, to, code string, _ time.Duration) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.to = to
	m.code = code
	return nil
}

func newTestOTPService(t *testing.T) (*OTPService, *memoryOTPStore, *recordingMailer, *time.Time) {
	t.Helper()
	store := newMemoryOTPStore()
	mailer := &recordingMailer{}
	service := NewOTPService(store, mailer, DefaultOTPConfig())
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	service.WithNowFunc(func() time.Time { return now })
	return service, store, mailer, &now
}

func TestOTPSendAndVerify(t *testing.T) {
	service, store, mailer, _ := newTestOTPService(t)
	ctx := context.Background()

	if err := service.Send(ctx, " Alice@Example.com ", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if mailer.to != "alice@example.com" {
		t.Fatalf("expected normalized recipient got %q", mailer.to)
	}
	if len(mailer.code) != 6 {
		t.Fatalf("expected 6 digit code got %q", mailer.code)
	}

	record, err := store.Latest(ctx, "alice@example.com", DefaultOTPPurpose)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if record.CodeHash == mailer.code || record.CodeHash == "" {
		t.Fatal("expected only a hash of the code to be stored")
	}

	if err := service.Verify(ctx, "alice@example.com", mailer.code, DefaultOTPPurpose); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if store.count() != 0 {
		t.Fatal("expected code to be consumed")
	}
	if err := service.Verify(ctx, "alice@example.com", mailer.code, DefaultOTPPurpose); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected consumed code to be gone got %v", err)
	}
}

func TestOTPSendCooldown(t *testing.T) {
	service, _, mailer, now := newTestOTPService(t)
	ctx := context.Background()

	if err := service.Send(ctx, "bob@example.com", "reset"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := service.Send(ctx, "bob@example.com", "reset"); !errors.Is(err, ErrOTPCooldown) {
		t.Fatalf("expected cooldown got %v", err)
	}
	if err := service.Send(ctx, "bob@example.com", "other"); err != nil {
		t.Fatalf("expected separate purpose to be independent: %v", err)
	}

	*now = now.Add(61 * time.Second)
	if err := service.Send(ctx, "bob@example.com", "reset"); err != nil {
		t.Fatalf("expected send after cooldown: %v", err)
	}
	if mailer.calls != 3 {
		t.Fatalf("expected 3 mails got %d", mailer.calls)
	}
}

func TestOTPAttemptLimit(t *testing.T) {
	service, store, mailer, _ := newTestOTPService(t)
	ctx := context.Background()

	if err := service.Send(ctx, "carol@example.com", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := mailer.code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 5; i++ {
		if err := service.Verify(ctx, "carol@example.com", wrong, ""); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("attempt %d: expected invalid got %v", i+1, err)
		}
	}
	if store.count() != 1 {
		t.Fatal("expected wrong attempts to keep the record")
	}

	if err := service.Verify(ctx, "carol@example.com", code, ""); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded got %v", err)
	}
	if store.count() != 0 {
		t.Fatal("expected record to be deleted after attempts exhausted")
	}
	if err := service.Verify(ctx, "carol@example.com", code, ""); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected code never to be accepted got %v", err)
	}
}

func TestOTPResendRetiresEarlierCode(t *testing.T) {
	service, store, mailer, now := newTestOTPService(t)
	ctx := context.Background()

	if err := service.Send(ctx, "fern@example.com", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	first := mailer.code

	*now = now.Add(61 * time.Second)
	if err := service.Send(ctx, "fern@example.com", ""); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := mailer.code
	if store.count() != 1 {
		t.Fatalf("expected only the newest code to be stored got %d", store.count())
	}

	var wrong string
	for _, candidate := range []string{"000000", "111111", "222222"} {
		if candidate != first && candidate != second {
			wrong = candidate
			break
		}
	}
	for i := 0; i < 5; i++ {
		if err := service.Verify(ctx, "fern@example.com", wrong, ""); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("attempt %d: expected invalid got %v", i+1, err)
		}
	}
	if err := service.Verify(ctx, "fern@example.com", second, ""); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded got %v", err)
	}
	if err := service.Verify(ctx, "fern@example.com", first, ""); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected earlier code to stay retired got %v", err)
	}
}

func TestOTPExpiry(t *testing.T) {
	service, store, mailer, now := newTestOTPService(t)
	ctx := context.Background()

	if err := service.Send(ctx, "dave@example.com", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	*now = now.Add(11 * time.Minute)
	if err := service.Verify(ctx, "dave@example.com", mailer.code, ""); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected expired got %v", err)
	}
	if store.count() != 0 {
		t.Fatal("expected expired record to be deleted")
	}
}

func TestOTPSendMailFailureDiscardsCode(t *testing.T) {
	service, store, mailer, _ := newTestOTPService(t)
	mailer.err = errors.New("smtp down")

	if err := service.Send(context.Background(), "erin@example.com", ""); err == nil {
		t.Fatal("expected mail failure to propagate")
	}
	if store.count() != 0 {
		t.Fatal("expected undelivered code to be discarded")
	}
}

func TestOTPJanitorSweep(t *testing.T) {
	store := newMemoryOTPStore()
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	_ = store.Replace(context.Background(), models.OTP{ID: "old", Email: "old@example.com", ExpiresAt: now.Add(-time.Minute)})
	_ = store.Replace(context.Background(), models.OTP{ID: "fresh", Email: "fresh@example.com", ExpiresAt: now.Add(time.Minute)})

	janitor := NewOTPJanitor(store, time.Minute)
	janitor.now = func() time.Time { return now }
	janitor.Sweep(context.Background())

	if store.count() != 1 {
		t.Fatalf("expected 1 remaining record got %d", store.count())
	}
}

func TestGenerateCodeLength(t *testing.T) {
	for _, digits := range []int{4, 6, 8} {
		code, err := generateCode(digits)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits got %q", digits, code)
		}
	}
}
