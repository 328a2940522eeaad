package domain

import (
	"strings"

	"github.com/asaskevich/govalidator"
)

// RawLead is one unvalidated entry from a lead source
type RawLead struct {
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Recipient is a validated, immutable lead ready for batching
type Recipient struct {
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewRecipient validates a raw lead and converts it to a Recipient.
// The email is lowercased so deduplication is case-insensitive.
func NewRecipient(lead RawLead) (Recipient, error) {
	email := strings.TrimSpace(strings.ToLower(lead.Email))
	if email == "" {
		return Recipient{}, NewValidationError("email is required")
	}
	if !govalidator.IsEmail(email) {
		return Recipient{}, NewValidationError("invalid email address: " + lead.Email)
	}
	return Recipient{
		Email:      email,
		Name:       strings.TrimSpace(lead.Name),
		Attributes: lead.Attributes,
	}, nil
}
