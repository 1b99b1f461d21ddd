package entities

// TwoFactorState is the per-user two-factor record. A record with
// Enabled=false is pending verification: the secret has been generated and
// shown once, but the user has not yet proven possession of it.
type TwoFactorState struct {
	Secret  string `json:"-"` // never serialized
	Enabled bool   `json:"enabled"`
}
