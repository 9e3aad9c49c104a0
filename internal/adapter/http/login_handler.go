package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/configs"
	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/security"
)

type TokenHandler struct {
	cfg configs.Config
}

func NewTokenHandler(cfg configs.Config) *TokenHandler {
	return &TokenHandler{cfg: cfg}
}

// POST /v1/token (form)
// Accepts: client_id, client_secret
func (h *TokenHandler) IssueToken(c *gin.Context) {
	clientID := c.PostForm("client_id")
	clientSecret := c.PostForm("client_secret")
	if clientID == "" || clientSecret == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	cl, ok := security.Clients[clientID]
	if !ok || !cl.Enabled ||
		subtle.ConstantTimeCompare([]byte(clientSecret), []byte(cl.Secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	ttl := h.cfg.Security.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":    h.cfg.Security.Issuer,
		"aud":    h.cfg.Security.Audience,
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
		"sub":    cl.ID,
		"tenant": cl.TenantID,
		"perms":  cl.Perms,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.Security.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   int(ttl.Seconds()),
	})
}
