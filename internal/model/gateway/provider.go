// ABOUTME: Model provider backed by a coven-gateway agent over HTTP and SSE
// ABOUTME: Probes readiness over HTTP or the gRPC health service and maps results to availability

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/2389/coven-chat/internal/model"
)

// Availability check modes.
const (
	CheckHTTP = "http"
	CheckGRPC = "grpc"
)

// DefaultRequestTimeout bounds health checks and the wait for response headers.
const DefaultRequestTimeout = 30 * time.Second

// Options configures the gateway provider.
type Options struct {
	URL            string // gateway HTTP base URL, e.g. http://localhost:8080
	GRPCAddr       string // gateway gRPC address, used when CheckMode is grpc
	AgentID        string
	Sender         string
	Token          string
	CheckMode      string // http (default) or grpc
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Provider implements model.Provider against a coven-gateway.
type Provider struct {
	baseURL   string
	grpcAddr  string
	agentID   string
	sender    string
	token     string
	checkMode string
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time

	connMu sync.Mutex
	conn   *grpc.ClientConn
}

// New creates a gateway provider.
func New(opts Options) (*Provider, error) {
	if opts.URL == "" {
		return nil, errors.New("gateway url is required")
	}
	if opts.CheckMode == "" {
		opts.CheckMode = CheckHTTP
	}
	if opts.CheckMode != CheckHTTP && opts.CheckMode != CheckGRPC {
		return nil, fmt.Errorf("unknown availability check mode %q", opts.CheckMode)
	}
	if opts.CheckMode == CheckGRPC && opts.GRPCAddr == "" {
		return nil, errors.New("grpc address is required for grpc availability checks")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Sender == "" {
		opts.Sender = "coven-chat"
	}
	if opts.HTTPClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = opts.RequestTimeout
		opts.HTTPClient = &http.Client{Transport: transport}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Provider{
		baseURL:   strings.TrimRight(opts.URL, "/"),
		grpcAddr:  opts.GRPCAddr,
		agentID:   opts.AgentID,
		sender:    opts.Sender,
		token:     opts.Token,
		checkMode: opts.CheckMode,
		timeout:   opts.RequestTimeout,
		client:    opts.HTTPClient,
		logger:    opts.Logger.With("component", "gateway_provider"),
		now:       time.Now,
	}, nil
}

// Availability reports whether the gateway can serve a chat request.
func (p *Provider) Availability(ctx context.Context) (model.Availability, error) {
	if err := checkToken(p.token, p.now()); err != nil {
		if errors.Is(err, errTokenExpired) {
			p.logger.Warn("gateway token expired", "error", err)
			return model.AvailabilityDisabled, nil
		}
		return model.AvailabilityUnknown, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.checkMode == CheckGRPC {
		return p.grpcAvailability(ctx)
	}
	return p.httpAvailability(ctx)
}

func (p *Provider) httpAvailability(ctx context.Context) (model.Availability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health/ready", nil)
	if err != nil {
		return model.AvailabilityUnknown, fmt.Errorf("creating request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return model.AvailabilityUnknown, fmt.Errorf("checking readiness: %w", err)
	}
	defer resp.Body.Close()

	return availabilityFromStatus(resp.StatusCode), nil
}

// availabilityFromStatus maps a /health/ready status code.
func availabilityFromStatus(code int) model.Availability {
	switch code {
	case http.StatusOK:
		return model.AvailabilityReady
	case http.StatusServiceUnavailable:
		return model.AvailabilityNotReady
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.AvailabilityDisabled
	case http.StatusNotFound:
		return model.AvailabilityIneligible
	default:
		return model.AvailabilityUnknown
	}
}

func (p *Provider) grpcAvailability(ctx context.Context) (model.Availability, error) {
	conn, err := p.grpcConn()
	if err != nil {
		return model.AvailabilityUnknown, err
	}

	if p.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+p.token)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return availabilityFromGRPCError(err)
	}
	return availabilityFromServingStatus(resp.GetStatus()), nil
}

// availabilityFromServingStatus maps a health check answer.
func availabilityFromServingStatus(s healthpb.HealthCheckResponse_ServingStatus) model.Availability {
	switch s {
	case healthpb.HealthCheckResponse_SERVING:
		return model.AvailabilityReady
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return model.AvailabilityNotReady
	case healthpb.HealthCheckResponse_SERVICE_UNKNOWN:
		return model.AvailabilityIneligible
	default:
		return model.AvailabilityUnknown
	}
}

// availabilityFromGRPCError maps a failed health check. Status codes that
// describe the gateway's answer are classified; transport failures are
// returned as errors.
func availabilityFromGRPCError(err error) (model.Availability, error) {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return model.AvailabilityDisabled, nil
	case codes.Unimplemented, codes.NotFound:
		return model.AvailabilityIneligible, nil
	default:
		return model.AvailabilityUnknown, fmt.Errorf("health check: %w", err)
	}
}

func (p *Provider) grpcConn() (*grpc.ClientConn, error) {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := grpc.NewClient(p.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", p.grpcAddr, err)
	}
	p.conn = conn
	return conn, nil
}

// NewSession allocates a fresh gateway thread so no earlier turns are visible.
func (p *Provider) NewSession(ctx context.Context, conversationID string) (model.Session, error) {
	if err := checkToken(p.token, p.now()); err != nil {
		return nil, err
	}
	s := &session{
		threadID:       uuid.New().String(),
		conversationID: conversationID,
		provider:       p,
	}
	p.logger.Debug("session created", "thread_id", s.threadID, "conversation_id", conversationID)
	return s, nil
}

// Close releases the gRPC connection, if one was opened.
func (p *Provider) Close() error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Provider) authorize(req *http.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
}
