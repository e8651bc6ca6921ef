package models

// Payloads carried by background jobs. Field names match the JSON the
// producers and processors agree on.

// EmailJob is the payload of forgotPasswordEmail.
type EmailJob struct {
	Template      string `json:"template"`
	ReceiverEmail string `json:"receiverEmail"`
	Subject       string `json:"subject"`
}

// AuthJob is the payload of addAuthUserToDB.
type AuthJob struct {
	Value *AuthUser `json:"value"`
}

// UserJob is the payload of addUserToDB.
type UserJob struct {
	Value *User `json:"value"`
}

// ResetPasswordParams fills the reset confirmation template.
type ResetPasswordParams struct {
	Username  string
	Email     string
	IPAddress string
	Date      string
}
