// Package domain contains entity types without logic, just meta-data.
package domain

import "errors"

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// UserInfo is the identity a client announces for itself. A connection
// has no UserInfo at all until its client announces one.
type UserInfo struct {
	ID       UserID `json:"userId"`
	Username string `json:"username"`
}

func (u *UserInfo) Validate() error {
	if len(u.Username) == 0 {
		return ErrUsernameEmpty
	}
	if len(u.Username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
