package remote

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/infra/tlsroots"
)

// testServer is a minimal TLS RESP server backed by a map. It supports the
// commands the client sends.
type testServer struct {
	ln       net.Listener
	cert     *x509.Certificate
	password string

	mu   sync.Mutex
	data map[string]string

	// scanBatch caps the keys returned per SCAN reply; zero returns all.
	scanBatch int
	commands  atomic.Int64
	wg        sync.WaitGroup
}

func newTestServer(t *testing.T, password string) *testServer {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	s := &testServer{ln: ln, cert: cert, password: password, data: make(map[string]string)}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *testServer) addr() string { return s.ln.Addr().String() }

func (s *testServer) url() string {
	if s.password == "" {
		return "rediss://" + s.addr() + "/0"
	}
	return "rediss://:" + s.password + "@" + s.addr() + "/0"
}

func (s *testServer) roots() *tlsroots.Pool {
	p := tlsroots.NewEmptyPool()
	p.AddCert(s.cert)
	return p
}

func (s *testServer) close() {
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *testServer) serve() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(nc)
		}()
	}
}

func (s *testServer) handle(nc net.Conn) {
	defer nc.Close()
	rd := bufio.NewReader(nc)
	wr := bufio.NewWriter(nc)
	authed := s.password == ""

	for {
		req, err := readReply(rd)
		if err != nil || req.kind != '*' || len(req.elems) == 0 {
			return
		}
		cmd := make([]string, len(req.elems))
		for i, e := range req.elems {
			cmd[i] = e.text()
		}
		s.commands.Add(1)

		name := strings.ToUpper(cmd[0])
		if name == "AUTH" {
			if cmd[len(cmd)-1] != s.password {
				wr.WriteString("-WRONGPASS invalid username-password pair\r\n")
			} else {
				authed = true
				wr.WriteString("+OK\r\n")
			}
		} else if !authed {
			wr.WriteString("-NOAUTH Authentication required.\r\n")
		} else {
			s.exec(wr, name, cmd[1:])
		}
		if err := wr.Flush(); err != nil {
			return
		}
	}
}

func (s *testServer) exec(w *bufio.Writer, name string, a []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case "PING":
		w.WriteString("+PONG\r\n")
	case "SELECT":
		w.WriteString("+OK\r\n")
	case "GET":
		v, ok := s.data[a[0]]
		if !ok {
			w.WriteString("$-1\r\n")
			return
		}
		writeBulk(w, v)
	case "SET":
		nx := false
		for _, opt := range a[2:] {
			if strings.EqualFold(opt, "NX") {
				nx = true
			}
		}
		if _, exists := s.data[a[0]]; nx && exists {
			w.WriteString("$-1\r\n")
			return
		}
		s.data[a[0]] = a[1]
		w.WriteString("+OK\r\n")
	case "DEL":
		n := 0
		for _, k := range a {
			if _, ok := s.data[k]; ok {
				delete(s.data, k)
				n++
			}
		}
		w.WriteString(":" + strconv.Itoa(n) + "\r\n")
	case "EVAL":
		// compare-and-delete: EVAL script 1 key expected
		key, expected := a[2], a[3]
		if v, ok := s.data[key]; ok && v == expected {
			delete(s.data, key)
			w.WriteString(":1\r\n")
			return
		}
		w.WriteString(":0\r\n")
	case "DBSIZE":
		w.WriteString(":" + strconv.Itoa(len(s.data)) + "\r\n")
	case "SCAN":
		s.scan(w, a)
	default:
		w.WriteString("-ERR unknown command '" + name + "'\r\n")
	}
}

// scan pages over the sorted key set. The cursor is an offset into it.
func (s *testServer) scan(w *bufio.Writer, a []string) {
	start, _ := strconv.Atoi(a[0])
	pattern := "*"
	for i := 1; i+1 < len(a); i += 2 {
		if strings.EqualFold(a[i], "MATCH") {
			pattern = a[i+1]
		}
	}

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := s.scanBatch
	if batch <= 0 {
		batch = len(keys)
	}
	end := start + batch
	if end > len(keys) {
		end = len(keys)
	}
	var matched []string
	for _, k := range keys[min(start, len(keys)):end] {
		if ok, _ := path.Match(pattern, k); ok {
			matched = append(matched, k)
		}
	}
	next := "0"
	if end < len(keys) {
		next = strconv.Itoa(end)
	}

	w.WriteString("*2\r\n")
	writeBulk(w, next)
	w.WriteString("*" + strconv.Itoa(len(matched)) + "\r\n")
	for _, k := range matched {
		writeBulk(w, k)
	}
}

func writeBulk(w *bufio.Writer, v string) {
	w.WriteString("$" + strconv.Itoa(len(v)) + "\r\n" + v + "\r\n")
}

func testStoreConfig(url string) config.StoreSection {
	cfg := config.Default().Store
	cfg.URL = url
	cfg.PoolSize = 4
	cfg.ConnectTimeout = time.Second
	cfg.SocketTimeout = time.Second
	cfg.AcquireTimeout = 500 * time.Millisecond
	cfg.ReconnectMin = time.Millisecond
	cfg.ReconnectMax = 5 * time.Millisecond
	cfg.HealthInterval = 10 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, s *testServer) *Client {
	t.Helper()
	c, err := NewClient(testStoreConfig(s.url()), WithRoots(s.roots()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}
