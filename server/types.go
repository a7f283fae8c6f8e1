package server

import (
	"encoding/json"

	"github.com/Daskott/haven/server/models"
	"github.com/Daskott/haven/server/notify"
)

type RequestContextKey string

const sessionUserKey = RequestContextKey("sessionUser")

type ResponsePayload struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type SosResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Alert     *models.Alert    `json:"alert"`
	SmsResult notify.SmsResult `json:"sms_result"`
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SosRequest is the body of both sos routes. Source and Timestamp are only
// sent by clients that queued the alert while offline.
type SosRequest struct {
	Location  json.RawMessage `json:"location"`
	Source    string          `json:"source"`
	Timestamp string          `json:"timestamp"`
}
