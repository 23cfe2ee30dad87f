package remote

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol limits for replies read from the backing store.
const (
	maxArrayLen = 1 << 16
	maxBulkLen  = 64 << 20
	maxLineLen  = 64 << 10
)

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

// ServerError is an error reply (-ERR ...) returned by the backing store.
type ServerError string

func (e ServerError) Error() string { return string(e) }

// Prefix returns the error class, e.g. "WRONGPASS".
func (e ServerError) Prefix() string {
	s := string(e)
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}

// reply is one decoded RESP value.
type reply struct {
	kind  byte // '+', '-', ':', '$' or '*'
	str   []byte
	num   int64
	elems []reply
	null  bool
}

func (r reply) text() string { return string(r.str) }

func writeCommand(w *bufio.Writer, args ...[]byte) error {
	if _, err := w.WriteString("*" + strconv.Itoa(len(args)) + "\r\n"); err != nil {
		return err
	}
	for _, a := range args {
		if _, err := w.WriteString("$" + strconv.Itoa(len(a)) + "\r\n"); err != nil {
			return err
		}
		if _, err := w.Write(a); err != nil {
			return err
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readReply(r *bufio.Reader) (reply, error) {
	line, err := readLine(r)
	if err != nil {
		return reply{}, err
	}
	if len(line) == 0 {
		return reply{}, fmt.Errorf("%w: empty reply line", ErrProtocol)
	}

	kind, body := line[0], line[1:]
	switch kind {
	case '+', '-':
		return reply{kind: kind, str: []byte(body)}, nil
	case ':':
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return reply{}, fmt.Errorf("%w: invalid integer %q", ErrProtocol, body)
		}
		return reply{kind: kind, num: n}, nil
	case '$':
		n, err := strconv.Atoi(body)
		if err != nil || n < -1 {
			return reply{}, fmt.Errorf("%w: invalid bulk length %q", ErrProtocol, body)
		}
		if n == -1 {
			return reply{kind: kind, null: true}, nil
		}
		if n > maxBulkLen {
			return reply{}, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, n, maxBulkLen)
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return reply{}, err
		}
		if !bytes.HasSuffix(buf, []byte("\r\n")) {
			return reply{}, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
		}
		return reply{kind: kind, str: buf[:n]}, nil
	case '*':
		n, err := strconv.Atoi(body)
		if err != nil || n < -1 {
			return reply{}, fmt.Errorf("%w: invalid array length %q", ErrProtocol, body)
		}
		if n == -1 {
			return reply{kind: kind, null: true}, nil
		}
		if n > maxArrayLen {
			return reply{}, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, n, maxArrayLen)
		}
		elems := make([]reply, 0, n)
		for i := 0; i < n; i++ {
			e, err := readReply(r)
			if err != nil {
				return reply{}, err
			}
			elems = append(elems, e)
		}
		return reply{kind: kind, elems: elems}, nil
	default:
		return reply{}, fmt.Errorf("%w: unexpected reply type %q", ErrProtocol, kind)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		if err == nil {
			buf = append(buf, frag...)
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			buf = append(buf, frag...)
			if len(buf) > maxLineLen {
				return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLineLen)
			}
			continue
		}
		return "", err
	}
	if len(buf) > maxLineLen {
		return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLineLen)
	}
	if len(buf) < 2 || !bytes.HasSuffix(buf, []byte("\r\n")) {
		return "", fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return string(buf[:len(buf)-2]), nil
}

// args converts string arguments to the byte form writeCommand takes.
func args(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
