package remote

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"
)

// conn is one authenticated TLS connection to the backing store.
type conn struct {
	nc            net.Conn
	rd            *bufio.Reader
	wr            *bufio.Writer
	socketTimeout time.Duration
}

type dialer struct {
	endpoint       Endpoint
	tlsConfig      *tls.Config
	connectTimeout time.Duration
	socketTimeout  time.Duration
}

func (d *dialer) dial(ctx context.Context) (*conn, error) {
	td := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.connectTimeout, KeepAlive: 30 * time.Second},
		Config:    d.tlsConfig,
	}
	ctx, cancel := context.WithTimeout(ctx, d.connectTimeout)
	defer cancel()

	nc, err := td.DialContext(ctx, "tcp", d.endpoint.Addr)
	if err != nil {
		return nil, err
	}
	c := &conn{
		nc:            nc,
		rd:            bufio.NewReader(nc),
		wr:            bufio.NewWriter(nc),
		socketTimeout: d.socketTimeout,
	}
	if err := c.handshake(d.endpoint); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *conn) handshake(ep Endpoint) error {
	if ep.Password != "" {
		cmd := args("AUTH", ep.Password)
		if ep.Username != "" {
			cmd = args("AUTH", ep.Username, ep.Password)
		}
		r, err := c.do(cmd...)
		if err != nil {
			return err
		}
		if r.kind != '+' {
			return fmt.Errorf("%w: unexpected AUTH reply", ErrProtocol)
		}
	}
	if ep.DB != 0 {
		if _, err := c.do(args("SELECT", strconv.Itoa(ep.DB))...); err != nil {
			return err
		}
	}
	return nil
}

// do sends one command and reads its reply. Error replies are returned as
// ServerError; any other error leaves the connection unusable.
func (c *conn) do(cmd ...[]byte) (reply, error) {
	if c.socketTimeout > 0 {
		if err := c.nc.SetDeadline(time.Now().Add(c.socketTimeout)); err != nil {
			return reply{}, err
		}
	}
	if err := writeCommand(c.wr, cmd...); err != nil {
		return reply{}, err
	}
	r, err := readReply(c.rd)
	if err != nil {
		return reply{}, err
	}
	if r.kind == '-' {
		return r, ServerError(r.text())
	}
	return r, nil
}

func (c *conn) close() {
	_ = c.nc.Close()
}
