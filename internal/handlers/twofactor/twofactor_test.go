package twofactor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jacobtartabini/joincircl-sub004/internal/services"
)

type fakeAuthService struct {
	identity *services.Identity
	err      error
}

func (f *fakeAuthService) ResolveIdentity(string) (*services.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

type fakeTwoFactorService struct {
	setupResult *services.SetupResult
	verifyErr   error
	status      *services.TwoFactorStatus

	locked    bool
	lockedTTL int64

	verifyCalled          bool
	registerFailureCalled bool
	clearFailuresCalled   bool
}

func (f *fakeTwoFactorService) Setup(context.Context, string, string) (*services.SetupResult, error) {
	return f.setupResult, nil
}

func (f *fakeTwoFactorService) Verify(_ context.Context, _, _ string, _ bool) error {
	f.verifyCalled = true
	return f.verifyErr
}

func (f *fakeTwoFactorService) Disable(context.Context, string) error {
	return nil
}

func (f *fakeTwoFactorService) Status(context.Context, string) (*services.TwoFactorStatus, error) {
	return f.status, nil
}

func (f *fakeTwoFactorService) IsLocked(context.Context, string) (bool, int64, error) {
	return f.locked, f.lockedTTL, nil
}

func (f *fakeTwoFactorService) RegisterFailure(context.Context, string) (bool, int64, error) {
	f.registerFailureCalled = true
	return false, 0, nil
}

func (f *fakeTwoFactorService) ClearFailures(context.Context, string) {
	f.clearFailuresCalled = true
}

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func TestHandle2FASetup(t *testing.T) {
	authSvc := &fakeAuthService{identity: &services.Identity{UserID: "u-1", Email: "user@example.com"}}
	twoFASvc := &fakeTwoFactorService{
		setupResult: &services.SetupResult{
			Secret:      "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
			OTPAuthURL:  "otpauth://totp/Circl:user@example.com?secret=JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP&issuer=Circl&algorithm=SHA1&digits=6&period=30",
			BackupCodes: []string{"AB12CD34", "XY98ZW76"},
		},
	}

	h := NewHandler(authSvc, twoFASvc)
	rw := httptest.NewRecorder()
	h.Handle2FASetup(rw, authedRequest(http.MethodPost, "/api/auth/2fa/setup", ""))

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rw.Code, rw.Body.String())
	}

	var resp struct {
		Secret      string   `json:"secret"`
		QRCode      string   `json:"qr_code"`
		QRCodeImage string   `json:"qr_code_image"`
		BackupCodes []string `json:"backup_codes"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Secret != twoFASvc.setupResult.Secret {
		t.Fatalf("unexpected secret %q", resp.Secret)
	}
	if !strings.HasPrefix(resp.QRCode, "otpauth://totp/") {
		t.Fatalf("unexpected qr_code %q", resp.QRCode)
	}
	if !strings.HasPrefix(resp.QRCodeImage, "data:image/png;base64,") {
		t.Fatalf("expected PNG data URI, got %q", resp.QRCodeImage[:min(len(resp.QRCodeImage), 40)])
	}
	if len(resp.BackupCodes) != 2 {
		t.Fatalf("expected 2 backup codes, got %d", len(resp.BackupCodes))
	}
}

func TestHandle2FAVerify_Success(t *testing.T) {
	authSvc := &fakeAuthService{identity: &services.Identity{UserID: "u-1"}}
	twoFASvc := &fakeTwoFactorService{}

	h := NewHandler(authSvc, twoFASvc)
	rw := httptest.NewRecorder()
	h.Handle2FAVerify(rw, authedRequest(http.MethodPost, "/api/auth/2fa/verify", `{"token":"123456"}`))

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rw.Code, rw.Body.String())
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatal("expected success:true")
	}
	if !twoFASvc.clearFailuresCalled {
		t.Fatal("expected failure counter to be cleared on success")
	}
}

func TestHandle2FAVerify_InvalidCode(t *testing.T) {
	authSvc := &fakeAuthService{identity: &services.Identity{UserID: "u-1"}}
	twoFASvc := &fakeTwoFactorService{verifyErr: services.ErrInvalidCode}

	h := NewHandler(authSvc, twoFASvc)
	rw := httptest.NewRecorder()
	h.Handle2FAVerify(rw, authedRequest(http.MethodPost, "/api/auth/2fa/verify", `{"token":"000000"}`))

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rw.Code)
	}
	if !twoFASvc.registerFailureCalled {
		t.Fatal("invalid code must register a failure")
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == "" {
		t.Fatal("expected error message in body")
	}
}

func TestHandle2FAVerify_LockedShortCircuits(t *testing.T) {
	authSvc := &fakeAuthService{identity: &services.Identity{UserID: "u-1"}}
	twoFASvc := &fakeTwoFactorService{locked: true, lockedTTL: 120}

	h := NewHandler(authSvc, twoFASvc)
	rw := httptest.NewRecorder()
	h.Handle2FAVerify(rw, authedRequest(http.MethodPost, "/api/auth/2fa/verify", `{"token":"123456"}`))

	if rw.Code != http.StatusLocked {
		t.Fatalf("expected 423 got %d", rw.Code)
	}
	if rw.Header().Get("Retry-After") != "120" {
		t.Fatalf("expected Retry-After 120, got %q", rw.Header().Get("Retry-After"))
	}
	if twoFASvc.verifyCalled {
		t.Fatal("locked verify must not reach the verifier")
	}
}

func TestHandle2FAVerify_NotSetUp(t *testing.T) {
	authSvc := &fakeAuthService{identity: &services.Identity{UserID: "u-1"}}
	twoFASvc := &fakeTwoFactorService{verifyErr: services.ErrNotSetUp}

	h := NewHandler(authSvc, twoFASvc)
	rw := httptest.NewRecorder()
	h.Handle2FAVerify(rw, authedRequest(http.MethodPost, "/api/auth/2fa/verify", `{"token":"123456"}`))

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rw.Code)
	}
	if twoFASvc.registerFailureCalled {
		t.Fatal("missing setup must not count as a code failure")
	}
}

func TestHandle2FAVerify_MissingToken(t *testing.T) {
	authSvc := &fakeAuthService{identity: &services.Identity{UserID: "u-1"}}
	twoFASvc := &fakeTwoFactorService{}

	h := NewHandler(authSvc, twoFASvc)
	rw := httptest.NewRecorder()
	h.Handle2FAVerify(rw, authedRequest(http.MethodPost, "/api/auth/2fa/verify", `{}`))

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rw.Code)
	}
	if twoFASvc.verifyCalled {
		t.Fatal("invalid request must not reach the verifier")
	}
}

func TestMissingAuthorizationHeader(t *testing.T) {
	h := NewHandler(&fakeAuthService{}, &fakeTwoFactorService{})

	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/2fa/setup", nil)
	h.Handle2FASetup(rw, req)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rw.Code)
	}
}

func TestHandle2FAStatus(t *testing.T) {
	authSvc := &fakeAuthService{identity: &services.Identity{UserID: "u-1"}}
	twoFASvc := &fakeTwoFactorService{status: &services.TwoFactorStatus{
		Enabled:              true,
		BackupCodesRemaining: 5,
	}}

	h := NewHandler(authSvc, twoFASvc)
	rw := httptest.NewRecorder()
	h.Handle2FAStatus(rw, authedRequest(http.MethodGet, "/api/auth/2fa/status", ""))

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rw.Code)
	}
	var resp struct {
		Enabled              bool `json:"enabled"`
		Pending              bool `json:"pending"`
		BackupCodesRemaining int  `json:"backup_codes_remaining"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Enabled || resp.Pending || resp.BackupCodesRemaining != 5 {
		t.Fatalf("unexpected status payload: %+v", resp)
	}
}
