package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/odoorpc/internal/telemetry"
	"github.com/roach88/odoorpc/internal/value"
)

const (
	DefaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second

	// maxErrorBody bounds how much of a non-200 body is kept for diagnostics.
	maxErrorBody = 512
)

// Config holds the connection parameters for a Transport.
type Config struct {
	URL      string
	Database string
	Username string
	Password string

	// Timeout bounds each HTTP round trip. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the default client. Its Jar is ignored; the
	// Transport manages cookies itself.
	HTTPClient *http.Client

	Logger    *slog.Logger
	Telemetry *telemetry.Manager

	// Middleware wraps every call_kw dispatch, outermost first. The
	// session-expiry recovery always runs innermost.
	Middleware []Middleware
}

// Validate checks that the required connection parameters are present.
func (c Config) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "url")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing connection parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Transport is a JSON-RPC client bound to one server, one database, and one
// set of credentials. It is safe for concurrent use; calls are serialized.
type Transport struct {
	cfg     Config
	base    *url.URL
	client  *http.Client
	session *Session
	logger  *slog.Logger
	tel     *telemetry.Manager

	// mu serializes authentication and calls so the session is never
	// mutated by two requests at once.
	mu   sync.Mutex
	call CallFunc
}

// New builds an unauthenticated Transport. The first call authenticates
// lazily; use Authenticate or Dial to log in eagerly.
func New(cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", cfg.URL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultClient(cfg.Timeout)
	}

	t := &Transport{
		cfg:     cfg,
		base:    base,
		client:  client,
		session: newSession(base, cfg.Database, cfg.Username),
		logger:  logger.With("component", "rpc", "db", cfg.Database),
		tel:     cfg.Telemetry,
	}
	mws := append([]Middleware{t.logCalls}, cfg.Middleware...)
	t.call = Chain(t.reauthOnExpiry(t.dispatch), mws...)
	return t, nil
}

// Dial builds a Transport and authenticates it.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := t.Authenticate(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func defaultClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: defaultConnectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultTLSTimeout,
		MaxIdleConnsPerHost: 4,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Session returns the read-only session handle.
func (t *Transport) Session() *Session { return t.session }

// Authenticate logs in with the configured credentials, discarding any
// cookies from a previous session.
func (t *Transport) Authenticate(ctx context.Context) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.authenticateLocked(ctx); err != nil {
		return nil, err
	}
	return t.session, nil
}

func (t *Transport) authenticateLocked(ctx context.Context) error {
	ctx, span := t.tel.StartSpan(ctx, "rpc.authenticate",
		attribute.String("rpc.db", t.cfg.Database),
		attribute.String("rpc.login", t.cfg.Username),
	)
	err := t.doAuthenticate(ctx)
	telemetry.EndSpan(span, err)
	return err
}

func (t *Transport) doAuthenticate(ctx context.Context) error {
	t.session.reset()
	authErr := func(err error) error {
		return &AuthenticationError{URL: t.base.String(), Database: t.cfg.Database, Login: t.cfg.Username, Err: err}
	}

	raw, err := t.post(ctx, AuthPath, authParams{
		DB:       t.cfg.Database,
		Login:    t.cfg.Username,
		Password: t.cfg.Password,
	})
	if err != nil {
		return authErr(err)
	}

	var res authResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return authErr(fmt.Errorf("decode login result: %w", err))
	}
	uid, err := value.Decode(res.UID)
	if err != nil && len(res.UID) > 0 {
		return authErr(fmt.Errorf("decode uid: %w", err))
	}
	id, ok := value.AsInt(uid)
	if !ok || id <= 0 {
		return authErr(ErrNoUID)
	}

	t.session.establish(id, res.Username, res.ServerVersion)
	t.logger.Info("authenticated",
		"url", t.base.String(),
		"uid", id,
		"server_version", res.ServerVersion,
	)
	return nil
}

// Invoke calls method on model through call_kw and returns the raw result.
// An unauthenticated session is logged in first. A session that expires
// mid-flight is re-authenticated once and the call retried once.
func (t *Transport) Invoke(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if model == "" || method == "" {
		return nil, errors.New("invoke: model and method are required")
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.session.Authenticated() {
		if err := t.authenticateLocked(ctx); err != nil {
			return nil, &NotAuthenticatedError{Err: err}
		}
	}
	return t.call(ctx, &Call{Model: model, Method: method, Args: args, Kwargs: kwargs})
}

// Logout destroys the server-side session and clears local cookies.
func (t *Transport) Logout(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.session.Authenticated() {
		return nil
	}
	_, err := t.post(ctx, DestroyPath, struct{}{})
	t.session.invalidate()
	return err
}

// dispatch performs one call_kw round trip without any recovery.
func (t *Transport) dispatch(ctx context.Context, c *Call) (json.RawMessage, error) {
	ctx, span := t.tel.StartSpan(ctx, "rpc.call_kw",
		attribute.String("rpc.model", c.Model),
		attribute.String("rpc.method", c.Method),
	)
	start := time.Now()
	raw, err := t.post(ctx, CallPath, c)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		rpcErr.Model = c.Model
		rpcErr.Method = c.Method
	}
	t.tel.RecordCall(ctx, telemetry.CallData{
		Endpoint: CallPath,
		Model:    c.Model,
		Method:   c.Method,
		Duration: time.Since(start),
		Error:    err,
	})
	telemetry.EndSpan(span, err)
	return raw, err
}

// post sends one envelope to endpoint and returns the result member.
func (t *Transport) post(ctx context.Context, endpoint string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(Request{
		JSONRPC: protocolVersion,
		Method:  "call",
		Params:  params,
		ID:      ulid.Make().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	target := t.base.JoinPath(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	t.session.attach(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	t.session.store(target, resp.Cookies())

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(snippet))),
		}
	}

	var env Response
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Error != nil {
		return nil, &RPCError{Endpoint: endpoint, Fault: *env.Error}
	}
	if len(env.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return env.Result, nil
}
