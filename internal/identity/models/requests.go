package models

import "strings"

// TelegramRequest is the body of /api/register-telegram and
// /api/get-user-by-telegram. UserID is the device key to link, if any.
type TelegramRequest struct {
	InitData string `json:"initData"`
	UserID   string `json:"userId,omitempty"`
}

// Normalize trims the device key. initData is signed and left untouched.
func (r *TelegramRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
}

// UserResponse is the public view of a user.
type UserResponse struct {
	UserID     string `json:"userId"`
	TelegramID string `json:"telegramId"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
}

// RegisterResponse reports how the Telegram identity was resolved.
type RegisterResponse struct {
	Success        bool         `json:"success"`
	User           UserResponse `json:"user"`
	Token          string       `json:"token"`
	IsExistingUser bool         `json:"isExistingUser"`
	IsLinked       bool         `json:"isLinked"`
	IsNewUser      bool         `json:"isNewUser"`
}

// LookupResponse is the result of /api/get-user-by-telegram.
type LookupResponse struct {
	Success bool          `json:"success"`
	Found   bool          `json:"found"`
	User    *UserResponse `json:"user,omitempty"`
	Token   string        `json:"token,omitempty"`
}
