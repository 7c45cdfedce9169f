// Package dto provides data transfer objects for the authentication endpoints.
package dto

import (
	validation "github.com/jellydator/validation"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	customValidation "github.com/mesaops/perimeter/internal/validation"
)

// LoginRequest contains the parameters for a login attempt.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks if the login request is valid. Password strength is not
// checked here: login must accept whatever the user registered with.
func (r *LoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email,
			validation.Required,
			customValidation.Email,
		),
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(1, 256),
		),
	)
}

// RegisterRequest contains the parameters for creating a new user.
type RegisterRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	OrganizationID   string `json:"organization_id"`
	Role             string `json:"role"`
	OrganizationType string `json:"organization_type"`
}

// Validate checks if the register request is valid, including password
// complexity and the role/organization-type vocabularies.
func (r *RegisterRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email,
			validation.Required,
			customValidation.Email,
		),
		validation.Field(&r.Password,
			validation.Required,
			customValidation.DefaultPasswordStrength,
		),
		validation.Field(&r.Name,
			validation.Required,
			validation.Length(1, 200),
		),
		validation.Field(&r.OrganizationID,
			validation.Required,
			validation.Length(1, 100),
		),
		validation.Field(&r.Role,
			validation.Required,
			validation.In(
				authDomain.RolePlatformAdmin,
				authDomain.RoleSupplierAdmin,
				authDomain.RoleSupplierStaff,
				authDomain.RoleRestaurantAdmin,
				authDomain.RoleRestaurantStaff,
			),
		),
		validation.Field(&r.OrganizationType,
			validation.Required,
			validation.In(
				authDomain.OrganizationTypeSupplier,
				authDomain.OrganizationTypeRestaurant,
				authDomain.OrganizationTypePlatform,
			),
		),
	)
}

// RefreshRequest carries a refresh credential presented in the body. The
// refresh cookie takes precedence when both are present.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate allows an empty body: the credential usually arrives as a cookie.
func (r *RefreshRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RefreshToken,
			validation.Length(0, 4096),
		),
	)
}
