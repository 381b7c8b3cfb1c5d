package domain

import (
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RoleCustomer Role = "customer"
)

const MinPasswordLength = 8

// MaxPasswordLength is the bcrypt input limit, in bytes.
const MaxPasswordLength = 72

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProvider, RoleCustomer:
		return true
	}
	return false
}

type User struct {
	ID           int32      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Phone        string     `json:"phone,omitempty"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	IsVerified   bool       `json:"is_verified"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsProvider() bool {
	return u.Role == RoleProvider
}

func (u *User) CanManageScooters() bool {
	return u.Role == RoleAdmin || u.Role == RoleProvider
}

// UserUpdate lists the profile fields a caller may change. Nil fields are left untouched.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Email     *string
}

func (u UserUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Phone == nil && u.Email == nil
}

// Apply validates each set field and copies it onto user. Email uniqueness is
// checked by the caller since it needs the store.
func (u UserUpdate) Apply(user *User) error {
	if u.FirstName != nil {
		name := TitleCase(*u.FirstName)
		if name == "" {
			return NewValidationError("first_name cannot be empty")
		}
		user.FirstName = name
	}
	if u.LastName != nil {
		name := TitleCase(*u.LastName)
		if name == "" {
			return NewValidationError("last_name cannot be empty")
		}
		user.LastName = name
	}
	if u.Phone != nil {
		user.Phone = strings.TrimSpace(*u.Phone)
	}
	if u.Email != nil {
		email, err := NormalizeEmail(*u.Email)
		if err != nil {
			return err
		}
		user.Email = email
	}
	return nil
}

// NormalizeEmail lowercases and validates an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", NewValidationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", NewValidationError("invalid email format")
	}
	return email, nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// TitleCase builds a fresh Caser per call; Casers keep state and are not safe to share.
func TitleCase(s string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(s))
}
