package auth

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SendRequest is the transport payload for sending a message.
type SendRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Body        string `json:"body" validate:"required,max=4000"`
}

func ValidateSend(req SendRequest) error {
	return validate.Struct(req)
}

// RegisterRequest creates a portal account.
type RegisterRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	DisplayName string `json:"display_name" validate:"required,max=120"`
	Password    string `json:"password" validate:"required,min=12,max=72"`
}

func ValidateRegister(req RegisterRequest) error {
	return validate.Struct(req)
}

// LoginRequest exchanges credentials for a session token.
type LoginRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

func ValidateLogin(req LoginRequest) error {
	return validate.Struct(req)
}
