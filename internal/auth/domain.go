package auth

import "time"

// Claims are the identity facts attached to a bearer token.
type Claims struct {
	UserID     string   `json:"_id"`
	Email      string   `json:"email"`
	Privileges []string `json:"privileges"`
}

// Token returns the claims in the decoded-token shape services check against.
func (c Claims) Token() map[string]any {
	privileges := make([]any, len(c.Privileges))
	for i, p := range c.Privileges {
		privileges[i] = p
	}
	return map[string]any{
		"_id":        c.UserID,
		"email":      c.Email,
		"privileges": privileges,
	}
}

// Session is an issued bearer token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Claims    Claims    `json:"claims"`
}
