package models

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
)

// MsgValidationFailed is the error message of every request validation failure.
const MsgValidationFailed = "Validation failed"

var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldMessages maps a request field to the detail reported when it is invalid.
var fieldMessages = map[string]string{
	"Username":      "Username must be 3-50 characters",
	"Password":      "Password must be 6-100 characters",
	"Name":          "Name is required and must be 1-100 characters",
	"AadhaarNumber": "Aadhaar number must be exactly 12 digits",
	"SRN":           "SRN is required and must be 1-50 characters",
	"Status":        "Status must be Pending, Approved, or Rejected",
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"min=3,max=50"`
	Password string `json:"password" form:"password" validate:"min=6,max=100"`
}

// Normalize trims the username.
func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

// CreateUserRequest is the body of POST /api/admin/users.
type CreateUserRequest struct {
	Username string `json:"username" form:"username" validate:"min=3,max=50"`
	Password string `json:"password" form:"password" validate:"min=6,max=100"`
}

// Normalize trims the username.
func (r *CreateUserRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

// RecordRequest is the body of POST /api/admin/data and PUT /api/admin/data/:id.
type RecordRequest struct {
	Name          string                `json:"name" validate:"min=1,max=100"`
	AadhaarNumber string                `json:"aadhaar_number" validate:"len=12,number"`
	SRN           string                `json:"srn" validate:"min=1,max=50"`
	Status        database.RecordStatus `json:"status" validate:"omitempty,oneof=Pending Approved Rejected"`
	AssignedUsers []uint                `json:"assigned_users"`
}

// Normalize trims all string fields.
func (r *RecordRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.AadhaarNumber = strings.TrimSpace(r.AadhaarNumber)
	r.SRN = strings.TrimSpace(r.SRN)
	r.Status = database.RecordStatus(strings.TrimSpace(string(r.Status)))
}

// Fields returns the scalar record fields of the request.
func (r *RecordRequest) Fields() database.RecordFields {
	return database.RecordFields{
		Name:          r.Name,
		AadhaarNumber: r.AadhaarNumber,
		SRN:           r.SRN,
		Status:        r.Status,
	}
}

// ValidateRecord validates a record request. Updates must name a status,
// creates fall back to Pending.
func ValidateRecord(r *RecordRequest, update bool) error {
	err := Validate(r)
	if !update || r.Status != "" {
		return err
	}

	msg := fieldMessages["Status"]
	if err == nil {
		return apperr.Validation(MsgValidationFailed, msg)
	}
	if ae := apperr.As(err); ae.Kind == apperr.KindValidation {
		ae.Details = append(ae.Details, msg)
	}
	return err
}

// Validate checks v against its validate tags and returns an apperr
// validation error listing every invalid field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal(err)
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = fe.Field() + " is invalid"
		}
		details = append(details, msg)
	}
	return apperr.Validation(MsgValidationFailed, details...)
}
