package models

// Requests for auth and admin HTTP endpoints.

type SignupRequest struct {
	Username    string `json:"username" validate:"required,alphanum,min=4,max=8"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=4,max=8"`
	AvatarColor string `json:"avatarColor" validate:"required"`
	AvatarImage string `json:"avatarImage"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token           string `param:"token" json:"-" validate:"required"`
	Password        string `json:"password" validate:"required,min=4,max=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type DeadLettersRequest struct {
	Queue string `param:"queue" json:"-" validate:"required"`
	Limit int    `query:"limit" json:"-" default:"50" validate:"gte=1,lte=1000"`
	Since string `query:"since" json:"-"`
}

// SignupResponse is returned by POST /signup.
type SignupResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}
