// Package domain defines the credential, signing-key, and security-context
// models owned by the authentication perimeter.
package domain

// TokenKind distinguishes the two credential kinds issued as a pair. A
// refresh-kind credential must never be accepted where an access-kind
// credential is required, and vice versa.
type TokenKind string

const (
	// AccessToken is the short-lived credential presented on every guarded request.
	AccessToken TokenKind = "access"

	// RefreshToken is the long-lived credential exchanged for a new pair.
	RefreshToken TokenKind = "refresh"
)

// Platform roles carried in credentials. Role-to-permission mapping is owned
// by the caller; the perimeter only matches roles against guard allow-lists.
const (
	RolePlatformAdmin    = "platform_admin"
	RoleSupplierAdmin    = "supplier_admin"
	RoleSupplierStaff    = "supplier_staff"
	RoleRestaurantAdmin  = "restaurant_admin"
	RoleRestaurantStaff  = "restaurant_staff"
)

// Organization types attached to identities by the user directory.
const (
	OrganizationTypeSupplier   = "supplier"
	OrganizationTypeRestaurant = "restaurant"
	OrganizationTypePlatform   = "platform"
)

// SigningAlgorithm is the fixed algorithm used to sign credentials.
const SigningAlgorithm = "RS256"
