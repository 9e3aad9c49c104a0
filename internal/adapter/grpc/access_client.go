package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

const checkMethod = "/access.v1.AccessService/Check"

// The access-control service speaks JSON over gRPC; no generated stubs.
func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type checkRequest struct {
	SubjectID string `json:"subjectId"`
	TenantID  string `json:"tenantId"`
	Module    string `json:"module"`
	Operation string `json:"operation"`
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// AccessClient implements usecase.AccessGate against the access-control
// service. Unavailability is surfaced as an error so callers fail closed.
type AccessClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	log     *slog.Logger
}

func NewAccessClient(conn *grpc.ClientConn, timeout time.Duration, log *slog.Logger) *AccessClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AccessClient{conn: conn, timeout: timeout, log: log}
}

func (c *AccessClient) Allow(ctx context.Context, p usecase.Principal, module, operation string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &checkRequest{
		SubjectID: p.ID,
		TenantID:  p.TenantID,
		Module:    module,
		Operation: operation,
	}
	var resp checkResponse
	err := c.conn.Invoke(callCtx, checkMethod, req, &resp, grpc.CallContentSubtype("json"))
	if err != nil {
		if status.Code(err) == codes.PermissionDenied {
			return false, nil
		}
		return false, fmt.Errorf("access check %s.%s: %w", module, operation, err)
	}
	if !resp.Allowed && resp.Reason != "" {
		c.log.Debug("access denied", "subject", p.ID, "module", module, "operation", operation, "reason", resp.Reason)
	}
	return resp.Allowed, nil
}

var _ usecase.AccessGate = (*AccessClient)(nil)
