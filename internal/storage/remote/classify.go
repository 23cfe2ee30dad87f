package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/yndnr/railstate-go/internal/core/domain"
)

// authErrorPrefixes mark error replies caused by bad credentials.
var authErrorPrefixes = []string{"WRONGPASS", "NOAUTH", "NOPERM"}

// classify maps a raw dial or command error onto the domain taxonomy.
// Configuration faults are never retried; transient faults are.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsDomainError(err, "") {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var serr ServerError
	if errors.As(err, &serr) {
		if isAuthError(serr) {
			return domain.ErrConnConfig.WithDetails("authentication rejected").WithCause(err)
		}
		if strings.HasPrefix(string(serr), "LOADING") || strings.HasPrefix(string(serr), "BUSY") {
			return domain.ErrConnTransient.WithCause(err)
		}
		return domain.ErrStorage.WithCause(err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return domain.ErrConnConfig.WithDetailsf("host %q not found", dnsErr.Name).WithCause(err)
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		verifyErr        *tls.CertificateVerificationError
		recordErr        tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &unknownAuthority),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidCert):
		return domain.ErrConnConfig.WithDetails("tls certificate not trusted").WithCause(err)
	case errors.As(err, &recordErr):
		return domain.ErrConnConfig.WithDetails("server does not speak TLS").WithCause(err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrConnTransient.WithDetails("timeout").WithCause(err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.ErrConnTransient.WithDetails("timeout").WithCause(err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return domain.ErrConnTransient.WithDetails("connection closed").WithCause(err)
	}
	return domain.ErrConnTransient.WithCause(err)
}

func isAuthError(e ServerError) bool {
	p := e.Prefix()
	for _, a := range authErrorPrefixes {
		if p == a {
			return true
		}
	}
	return strings.Contains(strings.ToLower(string(e)), "invalid password")
}

// brokenConn reports whether err left the connection in an unknown state.
func brokenConn(err error) bool {
	var serr ServerError
	return err != nil && !errors.As(err, &serr)
}
