package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MaxExpiration caps caller-requested credential lifetimes.
const MaxExpiration = 24 * time.Hour

// ChannelClaims are the claims of a media join credential.
type ChannelClaims struct {
	jwt.RegisteredClaims

	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UID     int    `json:"uid"`
	Role    Role   `json:"role"`
}

// IssueRequest mirrors the token endpoint body.
type IssueRequest struct {
	Channel string
	UID     int
	Role    Role
	// Expiration in seconds; zero uses the issuer default.
	Expiration int64
}

// Issuer signs join credentials with the application certificate (HS256).
type Issuer struct {
	appID  string
	secret []byte
	ttl    time.Duration
}

func NewIssuer(appID, certificate string, ttl time.Duration) (*Issuer, error) {
	if err := ValidateConfig(appID); err != nil {
		return nil, err
	}
	if certificate == "" {
		return nil, &ConfigurationError{Field: "RTC_APP_CERTIFICATE", Reason: "is required to issue tokens"}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{appID: appID, secret: []byte(certificate), ttl: ttl}, nil
}

var ErrInvalidIssueRequest = errors.New("token: invalid issue request")

// Issue returns a signed credential and its expiry.
func (i *Issuer) Issue(now time.Time, req IssueRequest) (string, time.Time, error) {
	if req.Channel == "" || req.UID < 0 {
		return "", time.Time{}, ErrInvalidIssueRequest
	}
	switch req.Role {
	case "":
		req.Role = RolePublisher
	case RolePublisher, RoleSubscriber:
	default:
		return "", time.Time{}, fmt.Errorf("%w: role %q", ErrInvalidIssueRequest, req.Role)
	}

	ttl := i.ttl
	if req.Expiration > 0 {
		ttl = time.Duration(req.Expiration) * time.Second
	}
	if ttl > MaxExpiration {
		ttl = MaxExpiration
	}
	exp := now.Add(ttl)

	claims := ChannelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.appID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		AppID:   i.appID,
		Channel: req.Channel,
		UID:     req.UID,
		Role:    req.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses a credential and checks it was issued for this application.
func (i *Issuer) Verify(tokenString string, now time.Time) (ChannelClaims, error) {
	var claims ChannelClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(i.appID),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return ChannelClaims{}, err
	}
	if claims.AppID != i.appID {
		return ChannelClaims{}, errors.New("token: app_id mismatch")
	}
	return claims, nil
}
