package httpapi

import (
	"errors"
	"net/http"
	"time"

	"eldercare-platform/internal/auth"
	"eldercare-platform/internal/rbac"
	"eldercare-platform/internal/records"
	"eldercare-platform/internal/reporting"
	"eldercare-platform/internal/token"
	"eldercare-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Tokens  *token.Issuer
	Records *records.Synchronizer
	Reports *reporting.Service

	// Now defaults to time.Now.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// abortErr maps service errors onto status codes and logs server faults.
func abortErr(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, records.ErrInvalidArgument), errors.Is(err, reporting.ErrInvalidRequest), errors.Is(err, token.ErrInvalidIssueRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, records.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	default:
		logger.FromGin(c).Error(what+" failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": what + " failed"})
	}
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: credentials are not checked here; this sits behind the identity
// provider in deployed environments.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), auth.Identity{UserID: req.UserID, DisplayName: req.DisplayName, Role: req.Role})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new pair.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(h.now(), req.RefreshToken)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// Me echoes the authenticated identity.
func (h Handlers) Me(c *gin.Context) {
	id, err := auth.FromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "display_name": id.DisplayName, "role": id.Role})
}

// --- Media join tokens ---

type rtcTokenRequest struct {
	ChannelName string     `json:"channelName"`
	UID         int        `json:"uid"`
	Role        token.Role `json:"role"`
	Expiration  int64      `json:"expiration"`
}

// IssueRTCToken signs a media join credential for an authenticated user.
func (h Handlers) IssueRTCToken(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token issuance not configured"})
		return
	}
	var req rtcTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tok, exp, err := h.Tokens.Issue(h.now(), token.IssueRequest{
		Channel:    req.ChannelName,
		UID:        req.UID,
		Role:       req.Role,
		Expiration: req.Expiration,
	})
	if err != nil {
		abortErr(c, err, "token")
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	logger.FromGin(c).Info("rtc token issued", "user_id", uid, "channel", req.ChannelName, "uid", req.UID)
	c.JSON(http.StatusOK, gin.H{"token": tok, "expiresAt": exp.UTC()})
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
