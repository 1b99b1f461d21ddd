package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacobtartabini/joincircl-sub004/internal/config"
	"github.com/jacobtartabini/joincircl-sub004/internal/models/entities"
	"github.com/jacobtartabini/joincircl-sub004/internal/totp"
	"github.com/jacobtartabini/joincircl-sub004/pkg/errors"
)

// Verification failures callers can branch on. Anything else coming out of
// the service is an infrastructure error.
var (
	ErrNotSetUp      = errors.BadRequest("2FA is not set up for this user")
	ErrInvalidFormat = errors.BadRequest("code must be exactly 6 digits")
	ErrInvalidCode   = errors.Unauthorized("invalid verification code")
)

var totpCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// TwoFactorStore is the persistence surface the service needs. Implemented
// by store.TwoFactorStore; faked in tests.
type TwoFactorStore interface {
	GetState(ctx context.Context, userID string) (*entities.TwoFactorState, error)
	SaveSetup(ctx context.Context, userID, secret string, backupCodes []string) error
	SetEnabled(ctx context.Context, userID string, enabled bool) error
	ConsumeBackupCode(ctx context.Context, userID, code string) (bool, error)
	BackupCodesRemaining(ctx context.Context, userID string) (int, error)
	Clear(ctx context.Context, userID string) error
	IsLocked(ctx context.Context, userID string) (bool, int64, error)
	RegisterFailure(ctx context.Context, userID string) (bool, int64, error)
	ClearFailures(ctx context.Context, userID string)
}

// SetupResult is returned once, at generation time. The secret is never
// readable again through any other operation.
type SetupResult struct {
	Secret      string
	OTPAuthURL  string
	BackupCodes []string
}

type TwoFactorStatus struct {
	Enabled              bool
	Pending              bool
	BackupCodesRemaining int
}

type TwoFactorService struct {
	config *config.Config
	store  TwoFactorStore
	tracer trace.Tracer

	// Overridable in tests.
	now     func() time.Time
	compute func(secret string, counter uint64) string
}

func NewTwoFactorService(cfg *config.Config, store TwoFactorStore) *TwoFactorService {
	return &TwoFactorService{
		config:  cfg,
		store:   store,
		tracer:  otel.Tracer("twofactor"),
		now:     time.Now,
		compute: totp.ComputeCode,
	}
}

// Setup generates a fresh secret and backup-code batch for the user and
// persists them in the pending (enabled=false) state. Re-running setup
// overwrites any previous secret and codes.
func (s *TwoFactorService) Setup(ctx context.Context, userID, account string) (*SetupResult, error) {
	ctx, span := s.tracer.Start(ctx, "twofactor.setup")
	defer span.End()

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, errors.InternalServerError("failed to generate TOTP secret", err)
	}
	backupCodes := totp.GenerateBackupCodes(s.config.BackupCodeCount)

	if err := s.store.SaveSetup(ctx, userID, secret, backupCodes); err != nil {
		return nil, errors.InternalServerError("failed to store 2FA state", err)
	}

	return &SetupResult{
		Secret:      secret,
		OTPAuthURL:  totp.KeyURI(s.config.TOTPIssuer, account, secret),
		BackupCodes: backupCodes,
	}, nil
}

// Verify checks a submitted token against the user's stored state. TOTP
// tokens are accepted within a one-step clock drift window; backup codes are
// consumed atomically on first use. The first success while the record is
// pending enables 2FA. On failure no state changes.
func (s *TwoFactorService) Verify(ctx context.Context, userID, token string, isBackupCode bool) error {
	ctx, span := s.tracer.Start(ctx, "twofactor.verify",
		trace.WithAttributes(attribute.Bool("backup_code", isBackupCode)))
	defer span.End()

	state, err := s.store.GetState(ctx, userID)
	if err != nil {
		return errors.InternalServerError("failed to load 2FA state", err)
	}
	if state == nil || state.Secret == "" {
		return ErrNotSetUp
	}

	if isBackupCode {
		code := strings.ToUpper(strings.TrimSpace(token))
		consumed, err := s.store.ConsumeBackupCode(ctx, userID, code)
		if err != nil {
			return errors.InternalServerError("failed to check backup code", err)
		}
		if !consumed {
			return ErrInvalidCode
		}
	} else {
		// Cheap rejection before any HMAC work.
		if !totpCodePattern.MatchString(token) {
			return ErrInvalidFormat
		}
		counter := totp.Counter(s.now())
		match := false
		for _, c := range []uint64{counter - 1, counter, counter + 1} {
			if s.compute(state.Secret, c) == token {
				match = true
				break
			}
		}
		if !match {
			return ErrInvalidCode
		}
	}

	if !state.Enabled {
		if err := s.store.SetEnabled(ctx, userID, true); err != nil {
			return errors.InternalServerError("failed to enable 2FA", err)
		}
	}
	return nil
}

// Disable clears the user's secret and remaining backup codes.
func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "twofactor.disable")
	defer span.End()

	state, err := s.store.GetState(ctx, userID)
	if err != nil {
		return errors.InternalServerError("failed to load 2FA state", err)
	}
	if state == nil {
		return ErrNotSetUp
	}
	if err := s.store.Clear(ctx, userID); err != nil {
		return errors.InternalServerError("failed to clear 2FA state", err)
	}
	return nil
}

// Status reports the current state without ever exposing the secret.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	state, err := s.store.GetState(ctx, userID)
	if err != nil {
		return nil, errors.InternalServerError("failed to load 2FA state", err)
	}
	if state == nil {
		return &TwoFactorStatus{}, nil
	}
	remaining, err := s.store.BackupCodesRemaining(ctx, userID)
	if err != nil {
		return nil, errors.InternalServerError("failed to count backup codes", err)
	}
	return &TwoFactorStatus{
		Enabled:              state.Enabled,
		Pending:              !state.Enabled,
		BackupCodesRemaining: remaining,
	}, nil
}

// --- Lockout passthroughs used by the verify handler ---

func (s *TwoFactorService) IsLocked(ctx context.Context, userID string) (bool, int64, error) {
	return s.store.IsLocked(ctx, userID)
}

func (s *TwoFactorService) RegisterFailure(ctx context.Context, userID string) (bool, int64, error) {
	return s.store.RegisterFailure(ctx, userID)
}

func (s *TwoFactorService) ClearFailures(ctx context.Context, userID string) {
	s.store.ClearFailures(ctx, userID)
}
