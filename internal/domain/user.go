package domain

import (
	"time"
)

// DefaultUsername is shown for accounts that never set a display name.
const DefaultUsername = "default user"

// User represents a registered account. TokenVersion is the session epoch:
// a token is only honoured while the version it carries equals this value.
type User struct {
	ID           string    `json:"id"`
	Account      string    `json:"account"`
	PasswordHash string    `json:"-"`
	Username     string    `json:"username"`
	EmployeeID   string    `json:"employee_id,omitempty"`
	Department   string    `json:"department,omitempty"`
	Role         string    `json:"role"`
	Avatar       string    `json:"avatar"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	TokenVersion int64     `json:"token_version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileUpdate carries the optional profile edits a user may apply to
// themselves. Nil fields are left unchanged.
type ProfileUpdate struct {
	Username   *string
	Avatar     *string
	Phone      *string
	Email      *string
	Department *string
	EmployeeID *string
}

// Apply copies every non-nil field onto u. It never touches credentials,
// role or token version.
func (p ProfileUpdate) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if p.EmployeeID != nil {
		u.EmployeeID = *p.EmployeeID
	}
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthBundle is returned by register and login: the user view plus a fresh
// token pair.
type AuthBundle struct {
	User *User `json:"user"`
	TokenPair
}
