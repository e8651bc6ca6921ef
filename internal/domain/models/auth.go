package models

import "time"

// AuthUser is the credential record of an account.
type AuthUser struct {
	ID                   string    `json:"id"`
	UID                  string    `json:"uId"`
	Username             string    `json:"username"`
	Email                string    `json:"email"`
	Password             string    `json:"password"`
	AvatarColor          string    `json:"avatarColor"`
	CreatedAt            time.Time `json:"createdAt"`
	PasswordResetToken   string    `json:"passwordResetToken,omitempty"`
	PasswordResetExpires time.Time `json:"passwordResetExpires,omitempty"`
}

// ResetTokenValid reports whether token is the current reset token and has not expired.
func (a *AuthUser) ResetTokenValid(token string, now time.Time) bool {
	return a.PasswordResetToken != "" && a.PasswordResetToken == token && now.Before(a.PasswordResetExpires)
}

// User is the public profile of an account.
type User struct {
	ID             string    `json:"id"`
	AuthID         string    `json:"authId"`
	UID            string    `json:"uId"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	AvatarColor    string    `json:"avatarColor"`
	ProfilePicture string    `json:"profilePicture"`
	PostsCount     int       `json:"postsCount"`
	FollowersCount int       `json:"followersCount"`
	FollowingCount int       `json:"followingCount"`
	CreatedAt      time.Time `json:"createdAt"`
}
