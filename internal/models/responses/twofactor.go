package responses

type TwoFactorSetupResponse struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qr_code"`
	QRCodeImage string   `json:"qr_code_image,omitempty"`
	BackupCodes []string `json:"backup_codes"`
}

type TwoFactorVerifyResponse struct {
	Success bool `json:"success"`
}

type TwoFactorStatusResponse struct {
	Enabled              bool `json:"enabled"`
	Pending              bool `json:"pending"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}
