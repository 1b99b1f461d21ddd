package twofactor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/jacobtartabini/joincircl-sub004/internal/constants"
	"github.com/jacobtartabini/joincircl-sub004/internal/models/requests"
	"github.com/jacobtartabini/joincircl-sub004/internal/models/responses"
	"github.com/jacobtartabini/joincircl-sub004/internal/services"
	"github.com/jacobtartabini/joincircl-sub004/pkg/errors"
)

const qrImageSize = 256

type AuthService interface {
	ResolveIdentity(tokenString string) (*services.Identity, error)
}

type TwoFactorService interface {
	Setup(ctx context.Context, userID, account string) (*services.SetupResult, error)
	Verify(ctx context.Context, userID, token string, isBackupCode bool) error
	Disable(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*services.TwoFactorStatus, error)
	IsLocked(ctx context.Context, userID string) (bool, int64, error)
	RegisterFailure(ctx context.Context, userID string) (bool, int64, error)
	ClearFailures(ctx context.Context, userID string)
}

type Handler struct {
	authService      AuthService
	twoFactorService TwoFactorService
}

func NewHandler(authService AuthService, twoFactorService TwoFactorService) *Handler {
	return &Handler{
		authService:      authService,
		twoFactorService: twoFactorService,
	}
}

// identity resolves the caller from the Authorization header or writes a
// 401 and returns nil.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) *services.Identity {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		errors.WriteError(w, errors.Unauthorized("missing or invalid authorization header"))
		return nil
	}
	id, err := h.authService.ResolveIdentity(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			errors.WriteError(w, appErr)
		} else {
			errors.WriteError(w, errors.Unauthorized("invalid token"))
		}
		return nil
	}
	return id
}

func (h *Handler) Handle2FASetup(w http.ResponseWriter, r *http.Request) {
	id := h.identity(w, r)
	if id == nil {
		return
	}

	// Label the enrollment URI with the user's email when the token carries
	// one; the account ID still works as a fallback label.
	account := id.Email
	if account == "" {
		account = id.UserID
	}

	result, err := h.twoFactorService.Setup(r.Context(), id.UserID, account)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := responses.TwoFactorSetupResponse{
		Secret:      result.Secret,
		QRCode:      result.OTPAuthURL,
		BackupCodes: result.BackupCodes,
	}

	if png, err := qrcode.Encode(result.OTPAuthURL, qrcode.Medium, qrImageSize); err != nil {
		slog.Error("failed to render qr code", "error", err)
	} else {
		response.QRCodeImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	slog.Info("2fa setup generated", "user_id", id.UserID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) Handle2FAVerify(w http.ResponseWriter, r *http.Request) {
	id := h.identity(w, r)
	if id == nil {
		return
	}

	var req requests.TwoFactorVerifyRequest
	if err := requests.ParseAndValidateJSON(r, &req); err != nil {
		errors.WriteError(w, errors.BadRequest(err.Error()))
		return
	}

	// Short-circuit inside a lockout window so repeated attempts don't
	// reset the TTL.
	if locked, ttl, _ := h.twoFactorService.IsLocked(r.Context(), id.UserID); locked {
		writeLockout(w, ttl)
		return
	}

	if err := h.twoFactorService.Verify(r.Context(), id.UserID, req.Token, req.IsBackupCode); err != nil {
		if err == services.ErrInvalidCode {
			if locked, ttl, _ := h.twoFactorService.RegisterFailure(r.Context(), id.UserID); locked {
				writeLockout(w, ttl)
				return
			}
		}
		writeServiceError(w, err)
		return
	}

	h.twoFactorService.ClearFailures(r.Context(), id.UserID)
	slog.Info("2fa verified", "user_id", id.UserID, "backup_code", req.IsBackupCode)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses.TwoFactorVerifyResponse{Success: true})
}

func (h *Handler) Handle2FADisable(w http.ResponseWriter, r *http.Request) {
	id := h.identity(w, r)
	if id == nil {
		return
	}

	if err := h.twoFactorService.Disable(r.Context(), id.UserID); err != nil {
		writeServiceError(w, err)
		return
	}

	slog.Info("2fa disabled", "user_id", id.UserID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses.SuccessResponse{Message: "2FA has been disabled"})
}

func (h *Handler) Handle2FAStatus(w http.ResponseWriter, r *http.Request) {
	id := h.identity(w, r)
	if id == nil {
		return
	}

	status, err := h.twoFactorService.Status(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses.TwoFactorStatusResponse{
		Enabled:              status.Enabled,
		Pending:              status.Pending,
		BackupCodesRemaining: status.BackupCodesRemaining,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		errors.WriteError(w, appErr)
		return
	}
	errors.WriteError(w, errors.InternalServerError("internal error", err))
}

func writeLockout(w http.ResponseWriter, ttl int64) {
	unlockAt := time.Now().Add(time.Duration(ttl) * time.Second).Unix()
	errors.WriteError(w, errors.NewAppError(http.StatusLocked, "2fa locked", nil).WithFields(map[string]interface{}{
		"lockout_remaining": ttl,
		"reason":            constants.ReasonTwoFALockout,
		"unlock_at":         unlockAt,
	}))
}
