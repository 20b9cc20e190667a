package models

import (
	"strings"
	"time"
)

// DefaultLanguage is the interface language for new settings.
const DefaultLanguage = "Français"

// User is a customer or staff account.
type User struct {
	ID           string         `json:"id" dynamodbav:"user_id"`
	Name         string         `json:"name" dynamodbav:"name"`
	Lastname     string         `json:"lastname" dynamodbav:"lastname"`
	Email        string         `json:"email" dynamodbav:"email"`
	PasswordHash string         `json:"-" dynamodbav:"password_hash"`
	Role         Role           `json:"role" dynamodbav:"role"`
	ProfilePic   string         `json:"profilePic,omitempty" dynamodbav:"profile_pic,omitempty"`
	Contracts    []string       `json:"contracts" dynamodbav:"contracts"`
	Settings     *Settings      `json:"settings,omitempty" dynamodbav:"settings,omitempty"`
	Reset        *PasswordReset `json:"-" dynamodbav:"reset,omitempty"`
	CreatedAt    time.Time      `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" dynamodbav:"updated_at"`
}

// Settings are per-user preferences.
type Settings struct {
	Language           string `json:"language" dynamodbav:"language"`
	EmailNotifications bool   `json:"emailNotifications" dynamodbav:"email_notifications"`
	PushNotifications  bool   `json:"pushNotifications" dynamodbav:"push_notifications"`
}

// DefaultSettings returns the settings a user has before changing any.
func DefaultSettings() Settings {
	return Settings{Language: DefaultLanguage, EmailNotifications: true, PushNotifications: true}
}

// EffectiveSettings returns the stored settings or the defaults.
func (u *User) EffectiveSettings() Settings {
	if u.Settings == nil {
		return DefaultSettings()
	}
	return *u.Settings
}

// PasswordReset tracks a reset request awaiting admin approval.
type PasswordReset struct {
	TokenHash   string    `dynamodbav:"token_hash"`
	Token       string    `dynamodbav:"token"`
	ExpiresAt   time.Time `dynamodbav:"expires_at"`
	RequestedAt time.Time `dynamodbav:"requested_at"`
	Approved    bool      `dynamodbav:"approved"`
}

// FullName joins name and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Lastname)
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
