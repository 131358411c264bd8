package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carry the caller identity in the registered subject plus the two
// fields call records denormalize. Both token types carry the role so a
// refresh can mint a new access token without a user lookup.
type Claims struct {
	jwt.RegisteredClaims

	DisplayName string    `json:"name,omitempty"`
	Role        string    `json:"role"`
	TokenType   TokenType `json:"typ"`
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.Subject, DisplayName: c.DisplayName, Role: c.Role}
}
