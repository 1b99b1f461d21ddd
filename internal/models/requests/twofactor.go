package requests

type TwoFactorVerifyRequest struct {
	Token        string `json:"token"`
	IsBackupCode bool   `json:"is_backup_code"`
}

func (r *TwoFactorVerifyRequest) Validate() error {
	// Token format is checked by the verifier, not here: TOTP tokens get
	// the 6-digit gate, and a malformed backup code simply fails the
	// membership test, so both paths share one error taxonomy.
	return ValidateRequired(map[string]string{
		"token": r.Token,
	})
}
