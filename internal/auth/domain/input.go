package domain

// LoginInput carries a sanitized login attempt toward the user directory.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// RegisterInput carries a sanitized registration toward the user directory.
type RegisterInput struct {
	Email            string
	Password         string
	Name             string
	OrganizationID   string
	Role             string
	OrganizationType string
	IPAddress        string
	UserAgent        string
}

// AuthOutput bundles the directory identity with the credential pair minted
// for it. CSRFToken pairs with the double-submit cookie set alongside the
// credentials.
type AuthOutput struct {
	Identity    *Identity
	Credentials *CredentialPair
	CSRFToken   string
}
