package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/puddle/v2"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/infra/tlsroots"
	"github.com/yndnr/railstate-go/internal/storage"
)

// Name is the backend name reported in stats.
const Name = "remote"

// compareAndDeleteScript deletes KEYS[1] only while it holds ARGV[1].
const compareAndDeleteScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// maxScanRounds bounds SCAN round trips per Scan call when the store
// returns sparse batches.
const maxScanRounds = 8

// CountPrefix scans in batches of countBatch for at most maxCountRounds
// round trips.
const (
	countBatch     = 1000
	maxCountRounds = 64
)

// Client is a pooled RESP-over-TLS client implementing storage.Backend.
type Client struct {
	pool           *puddle.Pool[*conn]
	acquireTimeout time.Duration
	retryAttempts  uint
	retryMin       time.Duration
	retryMax       time.Duration
	logger         *slog.Logger
}

var _ storage.Backend = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	roots  *tlsroots.Pool
	logger *slog.Logger
}

// WithRoots sets the trusted certificate pool. The default is the system
// pool plus store.ca_file.
func WithRoots(roots *tlsroots.Pool) ClientOption {
	return func(o *clientOptions) {
		o.roots = roots
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient validates cfg and creates a client. No connection is opened
// until the first command.
func NewClient(cfg config.StoreSection, opts ...ClientOption) (*Client, error) {
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ep, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if o.roots == nil {
		roots, err := tlsroots.Load(cfg.CAFile)
		if err != nil {
			return nil, domain.ErrConnConfig.WithDetails("cannot load store.ca_file").WithCause(err)
		}
		o.roots = roots
	}
	if cfg.PoolSize < 1 {
		return nil, domain.ErrConnConfig.WithDetails("store.pool_size must be at least 1")
	}

	d := &dialer{
		endpoint:       ep,
		tlsConfig:      o.roots.ClientConfig(ep.ServerName),
		connectTimeout: cfg.ConnectTimeout,
		socketTimeout:  cfg.SocketTimeout,
	}
	pool, err := puddle.NewPool(&puddle.Config[*conn]{
		Constructor: d.dial,
		Destructor:  func(c *conn) { c.close() },
		MaxSize:     int32(cfg.PoolSize),
	})
	if err != nil {
		return nil, domain.ErrConnConfig.WithCause(err)
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		pool:           pool,
		acquireTimeout: cfg.AcquireTimeout,
		retryAttempts:  uint(attempts),
		retryMin:       cfg.ReconnectMin,
		retryMax:       cfg.ReconnectMax,
		logger:         o.logger,
	}, nil
}

// Name implements storage.Backend.
func (c *Client) Name() string { return Name }

// PoolStats returns the number of connections in use and the pool capacity.
func (c *Client) PoolStats() (used, size int) {
	st := c.pool.Stat()
	return int(st.AcquiredResources()), int(st.MaxResources())
}

// Close releases every pooled connection. It blocks until acquired
// connections are returned.
func (c *Client) Close() {
	c.pool.Close()
}

// acquire takes a connection from the pool within the acquire timeout.
func (c *Client) acquire(ctx context.Context) (*puddle.Resource[*conn], error) {
	actx := ctx
	if c.acquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.acquireTimeout)
		defer cancel()
	}
	res, err := c.pool.Acquire(actx)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, puddle.ErrClosedPool) {
		return nil, domain.ErrConnTransient.WithDetails("connection pool closed")
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, domain.ErrConnTransient.WithDetailsf("no connection available within %s", c.acquireTimeout).WithCause(err)
	}
	return nil, classify(err)
}

// exec runs one command on a pooled connection. The connection is released
// on every path and destroyed if the command left it in an unknown state.
func (c *Client) exec(ctx context.Context, cmd ...[]byte) (reply, error) {
	res, err := c.acquire(ctx)
	if err != nil {
		return reply{}, err
	}
	r, err := res.Value().do(cmd...)
	if brokenConn(err) {
		res.Destroy()
	} else {
		res.Release()
	}
	if err != nil {
		return reply{}, classify(err)
	}
	return r, nil
}

// do runs exec with bounded retries on transient faults.
func (c *Client) do(ctx context.Context, cmd ...[]byte) (reply, error) {
	b := backoff.NewExponentialBackOff()
	if c.retryMin > 0 {
		b.InitialInterval = c.retryMin
	}
	if c.retryMax > 0 {
		b.MaxInterval = c.retryMax
	}

	op := func() (reply, error) {
		r, err := c.exec(ctx, cmd...)
		if err != nil && !domain.IsRetryable(err) {
			return reply{}, backoff.Permanent(err)
		}
		return r, err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug("retrying store command",
			"command", string(cmd[0]),
			"error", err,
			"retry_in", next,
		)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.retryAttempts),
		backoff.WithNotify(notify),
	)
}

// Probe sends a single PING without retries.
func (c *Client) Probe(ctx context.Context) error {
	r, err := c.exec(ctx, args("PING")...)
	if err != nil {
		return err
	}
	if r.kind != '+' || r.text() != "PONG" {
		return domain.ErrStorage.WithDetailsf("unexpected PING reply %q", r.text())
	}
	return nil
}

// Ping implements storage.Backend.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, args("PING")...)
	return err
}

// Get implements storage.Backend.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := c.do(ctx, args("GET", key)...)
	if err != nil {
		return nil, err
	}
	if r.null {
		return nil, storage.ErrKeyNotFound
	}
	if r.kind != '$' {
		return nil, unexpected("GET", r)
	}
	return r.str, nil
}

// Set implements storage.Backend.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := [][]byte{[]byte("SET"), []byte(key), value}
	cmd = append(cmd, expiryArgs(ttl)...)
	r, err := c.do(ctx, cmd...)
	if err != nil {
		return err
	}
	if r.kind != '+' {
		return unexpected("SET", r)
	}
	return nil
}

// SetNX implements storage.Backend.
func (c *Client) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	cmd := [][]byte{[]byte("SET"), []byte(key), value, []byte("NX")}
	cmd = append(cmd, expiryArgs(ttl)...)
	r, err := c.do(ctx, cmd...)
	if err != nil {
		return false, err
	}
	switch {
	case r.null:
		return false, nil
	case r.kind == '+':
		return true, nil
	}
	return false, unexpected("SET NX", r)
}

// Delete implements storage.Backend.
func (c *Client) Delete(ctx context.Context, key string) error {
	r, err := c.do(ctx, args("DEL", key)...)
	if err != nil {
		return err
	}
	if r.kind != ':' {
		return unexpected("DEL", r)
	}
	return nil
}

// CompareAndDelete implements storage.Backend.
func (c *Client) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	cmd := [][]byte{[]byte("EVAL"), []byte(compareAndDeleteScript), []byte("1"), []byte(key), expected}
	r, err := c.do(ctx, cmd...)
	if err != nil {
		return false, err
	}
	if r.kind != ':' {
		return false, unexpected("EVAL", r)
	}
	return r.num == 1, nil
}

// Count implements storage.Backend.
func (c *Client) Count(ctx context.Context) (int64, error) {
	r, err := c.do(ctx, args("DBSIZE")...)
	if err != nil {
		return 0, err
	}
	if r.kind != ':' {
		return 0, unexpected("DBSIZE", r)
	}
	return r.num, nil
}

// CountPrefix implements storage.Backend. It walks SCAN batches until the
// keyspace is exhausted, limit keys were seen or maxCountRounds round
// trips were spent; the last two report capped.
func (c *Client) CountPrefix(ctx context.Context, prefix string, limit int) (int64, bool, error) {
	pattern := escapeGlob(prefix) + "*"
	cursor := "0"
	var n int64
	for round := 0; round < maxCountRounds; round++ {
		next, batch, err := c.scanOnce(ctx, cursor, pattern, countBatch)
		if err != nil {
			return 0, false, err
		}
		n += int64(len(batch))
		if limit > 0 && n >= int64(limit) {
			return int64(limit), next != "0" || n > int64(limit), nil
		}
		if next == "0" {
			return n, false, nil
		}
		cursor = next
	}
	return n, true, nil
}

// Scan implements storage.Backend.
//
// SCAN may return more keys than asked for, so the cursor carries the
// store cursor of the current batch plus how many of its keys were already
// handed out: "<store_cursor>:<consumed>".
func (c *Client) Scan(ctx context.Context, prefix, cursor string, count int) ([]string, string, error) {
	if count <= 0 {
		return nil, "", nil
	}
	storeCursor, consumed, err := parseScanCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	pattern := escapeGlob(prefix) + "*"

	var out []string
	for round := 0; round < maxScanRounds; round++ {
		next, batch, err := c.scanOnce(ctx, storeCursor, pattern, count)
		if err != nil {
			return nil, "", err
		}
		if consumed > len(batch) {
			consumed = len(batch)
		}
		batch = batch[consumed:]

		room := count - len(out)
		if len(batch) > room {
			out = append(out, batch[:room]...)
			return out, formatScanCursor(storeCursor, consumed+room), nil
		}
		out = append(out, batch...)
		consumed = 0

		if next == "0" {
			return out, "", nil
		}
		storeCursor = next
		if len(out) == count {
			break
		}
	}
	return out, formatScanCursor(storeCursor, 0), nil
}

func (c *Client) scanOnce(ctx context.Context, cursor, pattern string, count int) (string, []string, error) {
	r, err := c.do(ctx, args("SCAN", cursor, "MATCH", pattern, "COUNT", strconv.Itoa(count))...)
	if err != nil {
		return "", nil, err
	}
	if r.kind != '*' || len(r.elems) != 2 || r.elems[1].kind != '*' {
		return "", nil, unexpected("SCAN", r)
	}
	keys := make([]string, 0, len(r.elems[1].elems))
	for _, e := range r.elems[1].elems {
		keys = append(keys, e.text())
	}
	return r.elems[0].text(), keys, nil
}

func parseScanCursor(cursor string) (string, int, error) {
	if cursor == "" {
		return "0", 0, nil
	}
	storeCursor, consumed, ok := strings.Cut(cursor, ":")
	if !ok {
		return "", 0, domain.ErrValidation.WithViolations([]string{"scan cursor is malformed"})
	}
	if _, err := strconv.ParseUint(storeCursor, 10, 64); err != nil {
		return "", 0, domain.ErrValidation.WithViolations([]string{"scan cursor is malformed"})
	}
	n, err := strconv.Atoi(consumed)
	if err != nil || n < 0 {
		return "", 0, domain.ErrValidation.WithViolations([]string{"scan cursor is malformed"})
	}
	return storeCursor, n, nil
}

func formatScanCursor(storeCursor string, consumed int) string {
	return storeCursor + ":" + strconv.Itoa(consumed)
}

// escapeGlob quotes the SCAN MATCH metacharacters of s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// expiryArgs returns the PX arguments for ttl, or none for ttl <= 0.
func expiryArgs(ttl time.Duration) [][]byte {
	if ttl <= 0 {
		return nil
	}
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return args("PX", strconv.FormatInt(ms, 10))
}

func unexpected(cmd string, r reply) error {
	return domain.ErrStorage.WithDetails(fmt.Sprintf("unexpected %s reply type %q", cmd, r.kind))
}
