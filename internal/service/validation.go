package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/iliyamo/admin-auth/internal/utils"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

const (
	minPasswordLen = 8
	maxEmailLen    = 255
)

// RegisterInput is the client-supplied registration payload.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// normalize trims the identifiers and lower-cases the email.  The password
// is taken verbatim.
func (in RegisterInput) normalize() RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return in
}

// validateRegistration reports every invalid field at once.
func validateRegistration(in RegisterInput) []FieldError {
	var fields []FieldError
	if !usernamePattern.MatchString(in.Username) {
		fields = append(fields, FieldError{Field: "username",
			Message: "must be 3-30 characters of letters, digits or underscore"})
	}
	if !validEmail(in.Email) {
		fields = append(fields, FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if msg := passwordProblem(in.Password); msg != "" {
		fields = append(fields, FieldError{Field: "password", Message: msg})
	}
	return fields
}

func validEmail(s string) bool {
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	// Reject display-name forms such as "Alice <a@b.c>".
	return addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func passwordProblem(p string) string {
	if len(p) < minPasswordLen {
		return "must be at least 8 characters"
	}
	if len(p) > utils.MaxPasswordBytes {
		return "must be at most 72 bytes"
	}
	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return "must contain an uppercase letter, a lowercase letter and a digit"
	}
	return ""
}
