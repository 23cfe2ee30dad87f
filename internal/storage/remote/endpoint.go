package remote

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/yndnr/railstate-go/internal/core/domain"
)

// Scheme is the only accepted backing store URL scheme.
const Scheme = "rediss"

const defaultPort = "6380"

// Endpoint is a parsed backing store URL.
type Endpoint struct {
	Addr       string // host:port
	ServerName string // host name verified against the certificate
	Username   string
	Password   string
	DB         int
}

// ParseURL parses rediss://[user[:password]@]host[:port][/db].
// A URL with only a user part treats it as the password.
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, domain.ErrConnConfig.WithDetails("store url is malformed")
	}
	if u.Scheme != Scheme {
		return Endpoint{}, domain.ErrConnConfig.WithDetailsf("store url scheme %q is not allowed, TLS (%s) is required", u.Scheme, Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return Endpoint{}, domain.ErrConnConfig.WithDetails("store url has no host")
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	ep := Endpoint{
		Addr:       net.JoinHostPort(host, port),
		ServerName: host,
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			ep.Username = u.User.Username()
			ep.Password = pw
		} else {
			ep.Password = u.User.Username()
		}
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return Endpoint{}, domain.ErrConnConfig.WithDetailsf("store url database %q is not a number", db)
		}
		ep.DB = n
	}
	return ep, nil
}
