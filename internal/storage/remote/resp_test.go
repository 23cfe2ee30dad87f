package remote

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestWriteCommand(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := writeCommand(w, args("SET", "k", "v")...); err != nil {
		t.Fatalf("writeCommand() error = %v", err)
	}
	want := "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"
	if buf.String() != want {
		t.Fatalf("writeCommand() = %q, want %q", buf.String(), want)
	}
}

func TestReadReply(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, r reply)
	}{
		{"simple string", "+OK\r\n", func(t *testing.T, r reply) {
			if r.kind != '+' || r.text() != "OK" {
				t.Fatalf("reply = %+v, want +OK", r)
			}
		}},
		{"error", "-ERR bad\r\n", func(t *testing.T, r reply) {
			if r.kind != '-' || r.text() != "ERR bad" {
				t.Fatalf("reply = %+v, want -ERR bad", r)
			}
		}},
		{"integer", ":42\r\n", func(t *testing.T, r reply) {
			if r.kind != ':' || r.num != 42 {
				t.Fatalf("reply = %+v, want :42", r)
			}
		}},
		{"bulk", "$5\r\nhello\r\n", func(t *testing.T, r reply) {
			if r.kind != '$' || r.text() != "hello" {
				t.Fatalf("reply = %+v, want hello", r)
			}
		}},
		{"null bulk", "$-1\r\n", func(t *testing.T, r reply) {
			if !r.null {
				t.Fatal("null = false, want true")
			}
		}},
		{"nested array", "*2\r\n$1\r\n0\r\n*1\r\n$1\r\nk\r\n", func(t *testing.T, r reply) {
			if len(r.elems) != 2 || r.elems[0].text() != "0" || r.elems[1].elems[0].text() != "k" {
				t.Fatalf("reply = %+v, want [0 [k]]", r)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := readReply(bufio.NewReader(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("readReply() error = %v", err)
			}
			tt.check(t, r)
		})
	}
}

func TestReadReply_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"unknown type", "?x\r\n", ErrProtocol},
		{"bad integer", ":x\r\n", ErrProtocol},
		{"bad bulk length", "$x\r\n", ErrProtocol},
		{"bad terminator", "$1\r\nab\r\n", ErrProtocol},
		{"missing CRLF", "+OK\n", ErrProtocol},
		{"bulk too large", "$999999999\r\n", ErrLimitExceeded},
		{"array too large", "*999999999\r\n", ErrLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readReply(bufio.NewReader(strings.NewReader(tt.input)))
			if !errors.Is(err, tt.want) {
				t.Fatalf("readReply() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestServerError_Prefix(t *testing.T) {
	if got := ServerError("WRONGPASS invalid").Prefix(); got != "WRONGPASS" {
		t.Fatalf("Prefix() = %q, want WRONGPASS", got)
	}
	if got := ServerError("ERR").Prefix(); got != "ERR" {
		t.Fatalf("Prefix() = %q, want ERR", got)
	}
}
