package auth

type LoginPayload struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8"`
}

// RegisterPayload is used by both /auth/register and /auth/setup.
type RegisterPayload struct {
	Username string  `json:"username" validate:"required,min=3,max=50" mod:"trim"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password string  `json:"password" validate:"required,min=8"`
}

type StatusResponse struct {
	NeedsSetup bool `json:"needs_setup"`
}

type MeResponse struct {
	ID          int      `json:"id"`
	Username    string   `json:"username"`
	Email       *string  `json:"email,omitempty"`
	RoleID      int      `json:"role_id"`
	RoleName    string   `json:"role_name"`
	Permissions []string `json:"permissions"`
}
