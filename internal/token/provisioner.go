// Package token supplies short-lived media join credentials.
//
// Client side, Provisioner asks the token endpoint for a credential and
// degrades to NoCredential when it cannot get one. Server side, Issuer signs
// the credentials that endpoint hands out.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// NoCredential is the "no token" sentinel accepted by permissive/testing projects.
const NoCredential = ""

// Role is the participant role a credential grants.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

var ErrEndpointNotConfigured = errors.New("token: endpoint not configured")

// Source is what the call wrapper needs from provisioning.
type Source interface {
	GenerateToken(ctx context.Context, channel string, uid int, role Role) (string, error)
	RefreshToken(ctx context.Context, channel string, uid int, role Role) (string, error)
}

type ProvisionerConfig struct {
	// Endpoint is the full URL of POST /api/agora/token.
	Endpoint string
	// Production enables the endpoint call; otherwise NoCredential is returned.
	Production bool
	// Strict returns endpoint failures instead of degrading to NoCredential.
	Strict bool
	TTL    time.Duration

	HTTPClient *http.Client
}

// Provisioner fetches join credentials from the token endpoint.
type Provisioner struct {
	cfg  ProvisionerConfig
	http *http.Client
	log  *slog.Logger
}

func NewProvisioner(cfg ProvisionerConfig, log *slog.Logger) *Provisioner {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{cfg: cfg, http: hc, log: log.With("component", "token")}
}

type tokenRequest struct {
	ChannelName string `json:"channelName"`
	UID         int    `json:"uid"`
	Role        Role   `json:"role"`
	Expiration  int64  `json:"expiration"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// GenerateToken returns a credential for (channel, uid, role).
func (p *Provisioner) GenerateToken(ctx context.Context, channel string, uid int, role Role) (string, error) {
	if !p.cfg.Production {
		p.log.Debug("token skipped outside production", "channel", channel, "uid", uid)
		return NoCredential, nil
	}
	tok, err := p.fetch(ctx, channel, uid, role)
	if err != nil {
		return p.degrade(channel, uid, err)
	}
	p.log.Info("token issued", "channel", channel, "uid", uid, "role", string(role))
	return tok, nil
}

// RefreshToken mints a fresh credential on retry paths.
func (p *Provisioner) RefreshToken(ctx context.Context, channel string, uid int, role Role) (string, error) {
	p.log.Info("token refresh", "channel", channel, "uid", uid)
	if !p.cfg.Production {
		return NoCredential, nil
	}
	tok, err := p.fetch(ctx, channel, uid, role)
	if err != nil {
		return p.degrade(channel, uid, err)
	}
	return tok, nil
}

func (p *Provisioner) degrade(channel string, uid int, err error) (string, error) {
	if p.cfg.Strict {
		p.log.Error("token endpoint failed", "channel", channel, "uid", uid, "err", err)
		return "", err
	}
	p.log.Warn("token endpoint failed, joining without credential", "channel", channel, "uid", uid, "err", err)
	return NoCredential, nil
}

func (p *Provisioner) fetch(ctx context.Context, channel string, uid int, role Role) (string, error) {
	if p.cfg.Endpoint == "" {
		return "", ErrEndpointNotConfigured
	}
	if role == "" {
		role = RolePublisher
	}
	body, err := json.Marshal(tokenRequest{
		ChannelName: channel,
		UID:         uid,
		Role:        role,
		Expiration:  int64(p.cfg.TTL / time.Second),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token: endpoint returned %d", resp.StatusCode)
	}
	var out tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("token: decode response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("token: endpoint returned empty token")
	}
	return out.Token, nil
}
