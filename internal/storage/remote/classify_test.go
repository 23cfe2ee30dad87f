package remote

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/yndnr/railstate-go/internal/core/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *domain.DomainError
	}{
		{"wrong password", ServerError("WRONGPASS invalid username-password pair"), domain.ErrConnConfig},
		{"no auth", ServerError("NOAUTH Authentication required."), domain.ErrConnConfig},
		{"legacy auth", ServerError("ERR invalid password"), domain.ErrConnConfig},
		{"loading", ServerError("LOADING dataset in memory"), domain.ErrConnTransient},
		{"other server error", ServerError("ERR unknown command"), domain.ErrStorage},
		{"dns", &net.DNSError{Name: "nohost", IsNotFound: true}, domain.ErrConnConfig},
		{"unknown authority", fmt.Errorf("dial: %w", x509.UnknownAuthorityError{}), domain.ErrConnConfig},
		{"deadline", context.DeadlineExceeded, domain.ErrConnTransient},
		{"eof", io.EOF, domain.ErrConnTransient},
		{"refused", errors.New("connect: connection refused"), domain.ErrConnTransient},
		{"already classified", domain.ErrValidation, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	if classify(nil) != nil {
		t.Fatal("classify(nil) != nil")
	}
	if got := classify(context.Canceled); got != context.Canceled {
		t.Fatalf("classify(Canceled) = %v, want context.Canceled", got)
	}
}

func TestBrokenConn(t *testing.T) {
	if brokenConn(nil) {
		t.Fatal("brokenConn(nil) = true")
	}
	if brokenConn(ServerError("ERR x")) {
		t.Fatal("brokenConn(ServerError) = true, want false")
	}
	if !brokenConn(io.EOF) {
		t.Fatal("brokenConn(EOF) = false, want true")
	}
}
