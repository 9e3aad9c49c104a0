package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	reqBodyLimit  = 8 * 1024
	respBodyLimit = 8 * 1024
)

// redactedFields are scrubbed from logged bodies. Beyond the usual credential
// names, PIX charge material is payment-grade: a leaked copy-paste code or
// gateway secret is as good as the money.
var redactedFields = map[string]struct{}{
	"password":       {},
	"authorization":  {},
	"token":          {},
	"secret":         {},
	"client_secret":  {},
	"clientsecret":   {},
	"access_token":   {},
	"accesstoken":    {},
	"webhook_secret": {},
	"qrcode":         {},
	"qr_code":        {},
	"pix_key":        {},
	"pixkey":         {},
}

type bodyLogWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bodyLogWriter) Write(b []byte) (int, error) {
	if w.buf != nil && w.buf.Len() < respBodyLimit {
		remain := respBodyLimit - w.buf.Len()
		if len(b) > remain {
			w.buf.Write(b[:remain])
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func redactJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	var m any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw // not JSON
	}
	var scrub func(any) any
	scrub = func(x any) any {
		switch v := x.(type) {
		case map[string]any:
			for k, val := range v {
				if _, hit := redactedFields[strings.ToLower(k)]; hit {
					v[k] = "***redacted***"
					continue
				}
				v[k] = scrub(val)
			}
			return v
		case []any:
			for i := range v {
				v[i] = scrub(v[i])
			}
			return v
		default:
			return v
		}
	}
	out := scrub(m)
	b, err := json.Marshal(out)
	if err != nil {
		return raw
	}
	return b
}

func capBody(b []byte, n int) (capped []byte, truncated bool) {
	if len(b) > n {
		return b[:n], true
	}
	return b, false
}

// isWebhookRoute skips body capture for provider callbacks: the raw payload
// already lands in the webhook audit trail, and signature verification must
// see the bytes untouched.
func isWebhookRoute(path string) bool {
	return strings.HasPrefix(path, "/v1/webhooks/")
}

// Logging logs one line per request and injects a request-scoped slog.Logger
// into the gin context.
func Logging(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
			c.Request.Header.Set("X-Request-Id", reqID)
		}
		c.Header("X-Request-Id", reqID)

		l := base.With(
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.FullPath(), // may be empty if no route matched
			"remote", c.ClientIP(),
		)
		logging.With(c, l)

		// Capture JSON request bodies. Handlers get the raw bytes back;
		// redaction and capping apply only to the logged copy.
		var reqBodyLogged string
		ct := c.GetHeader("Content-Type")
		if strings.Contains(ct, "application/json") && c.Request.Body != nil &&
			!isWebhookRoute(c.Request.URL.Path) {
			raw, err := io.ReadAll(c.Request.Body)
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewReader(raw))
				logged, truncated := capBody(redactJSON(raw), reqBodyLimit)
				reqBodyLogged = string(logged)
				if truncated {
					reqBodyLogged += "...truncated..."
				}
			}
		}

		blw := &bodyLogWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = blw

		c.Next()

		status := c.Writer.Status()
		durMs := time.Since(start).Milliseconds()

		var respBodyLogged string
		if strings.Contains(c.Writer.Header().Get("Content-Type"), "application/json") {
			respBodyLogged = string(redactJSON(blw.buf.Bytes()))
			if blw.buf.Len() >= respBodyLimit {
				respBodyLogged += "...truncated..."
			}
		}

		attrs := []any{
			"status", status,
			"dur_ms", durMs,
		}
		// The authz middleware runs inside Next; by now the principal is
		// resolved for authenticated routes.
		if p := PrincipalFrom(c); p.TenantID != "" {
			attrs = append(attrs, "tenant_id", p.TenantID, "subject", p.ID)
		}
		if reqBodyLogged != "" {
			attrs = append(attrs, "req_body", reqBodyLogged)
		}
		if respBodyLogged != "" {
			attrs = append(attrs, "resp_body", respBodyLogged)
		}
		if len(c.Params) > 0 {
			attrs = append(attrs, "params", c.Params)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		attrs = append(attrs, "resp_bytes", c.Writer.Size())

		if status >= http.StatusBadRequest {
			l.Error("http_request", attrs...)
			return
		}
		l.Info("http_request", attrs...)
	}
}
