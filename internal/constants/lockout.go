package constants

// Lockout reason constants used in responses so the frontend can rely on
// stable values.
const (
	ReasonTwoFALockout = "2fa_lockout"
)
