// Package redisstub runs a minimal in-process Redis server speaking just
// enough of the protocol for the session store tests: string SET/GET/DEL and
// paginated SCAN, plus the client handshake (AUTH, SELECT, HELLO fallback,
// CLIENT SETINFO) and optional TLS with a self-signed certificate.
package redisstub

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Options struct {
	Password  string
	EnableTLS bool
}

type Server struct {
	opts     Options
	listener net.Listener
	addr     string
	mu       sync.Mutex
	kv       map[string]string
	scans    map[uint64][]string
	nextScan uint64
	closed   chan struct{}
	tlsCert  tls.Certificate
	certPEM  []byte
	keyPEM   []byte
}

func Start(opts Options) (*Server, error) {
	var ln net.Listener
	var err error
	server := &Server{
		opts:   opts,
		kv:     make(map[string]string),
		scans:  make(map[uint64][]string),
		closed: make(chan struct{}),
	}
	addr := "127.0.0.1:0"
	if opts.EnableTLS {
		certPEM, keyPEM, cert, certErr := generateSelfSignedCert()
		if certErr != nil {
			return nil, certErr
		}
		server.tlsCert = cert
		server.certPEM = certPEM
		server.keyPEM = keyPEM
		tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
		ln, err = tls.Listen("tcp", addr, tlsCfg)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	server.listener = ln
	server.addr = ln.Addr().String()
	go server.serve()
	return server, nil
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) CertPEM() []byte {
	return s.certPEM
}

func (s *Server) KeyPEM() []byte {
	return s.keyPEM
}

func (s *Server) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	return nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	authenticated := s.opts.Password == ""
	for {
		args, err := readArray(reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			writeError(writer, "ERR wrong number of arguments")
			continue
		}
		cmd := strings.ToUpper(args[0])
		switch cmd {
		case "PING":
			if err := writeSimpleString(writer, "PONG"); err != nil {
				return
			}
		case "HELLO":
			// go-redis opens with HELLO and falls back to the legacy
			// handshake when the server rejects it.
			if err := writeError(writer, "ERR unknown command 'HELLO'"); err != nil {
				return
			}
		case "AUTH":
			if len(args) == 2 {
				if s.opts.Password == "" || args[1] == s.opts.Password {
					authenticated = true
					if err := writeSimpleString(writer, "OK"); err != nil {
						return
					}
				} else {
					if err := writeError(writer, "WRONGPASS invalid username-password pair"); err != nil {
						return
					}
				}
			} else if len(args) == 3 {
				if s.opts.Password != "" && args[2] == s.opts.Password {
					authenticated = true
					if err := writeSimpleString(writer, "OK"); err != nil {
						return
					}
				} else {
					if err := writeError(writer, "WRONGPASS invalid username-password pair"); err != nil {
						return
					}
				}
			} else {
				if err := writeError(writer, "ERR wrong number of arguments for 'auth'"); err != nil {
					return
				}
			}
		case "SELECT":
			if err := writeSimpleString(writer, "OK"); err != nil {
				return
			}
		default:
			if !authenticated {
				if err := writeError(writer, "NOAUTH Authentication required."); err != nil {
					return
				}
				continue
			}
			if !s.dispatch(writer, args) {
				return
			}
		}
	}
}

func (s *Server) dispatch(writer *bufio.Writer, args []string) bool {
	cmd := strings.ToUpper(args[0])
	switch cmd {
	case "CLIENT":
		// CLIENT SETINFO and friends are handshake noise.
		if err := writeSimpleString(writer, "OK"); err != nil {
			return false
		}
		return true
	case "SET":
		if len(args) < 3 {
			_ = writeError(writer, "ERR wrong number of arguments for 'set'")
			return false
		}
		s.mu.Lock()
		s.kv[args[1]] = args[2]
		s.mu.Unlock()
		if err := writeSimpleString(writer, "OK"); err != nil {
			return false
		}
		return true
	case "GET":
		if len(args) != 2 {
			_ = writeError(writer, "ERR wrong number of arguments for 'get'")
			return false
		}
		s.mu.Lock()
		value, ok := s.kv[args[1]]
		s.mu.Unlock()
		if !ok {
			if err := writeBulkNil(writer); err != nil {
				return false
			}
			return true
		}
		if err := writeBulkString(writer, value); err != nil {
			return false
		}
		return true
	case "DEL":
		if len(args) < 2 {
			_ = writeError(writer, "ERR wrong number of arguments for 'del'")
			return false
		}
		removed := int64(0)
		s.mu.Lock()
		for _, key := range args[1:] {
			if _, ok := s.kv[key]; ok {
				delete(s.kv, key)
				removed++
			}
		}
		s.mu.Unlock()
		if err := writeInteger(writer, removed); err != nil {
			return false
		}
		return true
	case "SCAN":
		if len(args) < 2 {
			_ = writeError(writer, "ERR wrong number of arguments for 'scan'")
			return false
		}
		cursor, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			_ = writeError(writer, "ERR invalid cursor")
			return false
		}
		pattern := "*"
		count := 10
		for i := 2; i+1 < len(args); i += 2 {
			switch strings.ToUpper(args[i]) {
			case "MATCH":
				pattern = args[i+1]
			case "COUNT":
				v, err := strconv.Atoi(args[i+1])
				if err != nil || v <= 0 {
					_ = writeError(writer, "ERR invalid COUNT")
					return false
				}
				count = v
			}
		}
		keys, next := s.scan(cursor, pattern, count)
		page := make([]interface{}, 0, len(keys))
		for _, key := range keys {
			page = append(page, key)
		}
		reply := []interface{}{strconv.FormatUint(next, 10), page}
		if err := writeArray(writer, reply); err != nil {
			return false
		}
		return true
	default:
		_ = writeError(writer, "ERR unsupported command")
		return false
	}
}

// scan pages through a snapshot of the matching keys. A snapshot taken on the
// first call keeps the iteration stable while the caller deletes keys between
// pages; already-deleted keys simply come back nil on GET.
func (s *Server) scan(cursor uint64, pattern string, count int) ([]string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snapshot []string
	if cursor == 0 {
		for key := range s.kv {
			if matched, err := path.Match(pattern, key); err == nil && matched {
				snapshot = append(snapshot, key)
			}
		}
		sort.Strings(snapshot)
	} else {
		snapshot = s.scans[cursor]
		delete(s.scans, cursor)
	}
	if len(snapshot) <= count {
		return snapshot, 0
	}
	s.nextScan++
	s.scans[s.nextScan] = snapshot[count:]
	return snapshot[:count], s.nextScan
}

func generateSelfSignedCert() ([]byte, []byte, tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, tls.Certificate{}, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"127.0.0.1", "localhost"},
	}
	tmpl.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	derBytes, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, tls.Certificate{}, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, nil, tls.Certificate{}, err
	}
	return certPEM, keyPEM, cert, nil
}

func readArray(r *bufio.Reader) ([]string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if prefix != '*' {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, length)
	for i := 0; i < length; i++ {
		arg, err := readBulkString(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	return strconv.Atoi(line)
}

func readBulkString(r *bufio.Reader) (string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if prefix != '$' {
		return "", fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	buf := make([]byte, length+2)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	return string(buf[:length]), nil
}

func writeSimpleString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "+%s\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeBulkString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(value), value); err != nil {
		return err
	}
	return w.Flush()
}

func writeBulkNil(w *bufio.Writer) error {
	if _, err := w.WriteString("$-1\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

func writeInteger(w *bufio.Writer, value int64) error {
	if _, err := fmt.Fprintf(w, ":%d\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeArray(w *bufio.Writer, values []interface{}) error {
	if err := writeArrayRaw(w, values); err != nil {
		return err
	}
	return w.Flush()
}

func writeArrayRaw(w *bufio.Writer, values []interface{}) error {
	if _, err := fmt.Fprintf(w, "*%d\r\n", len(values)); err != nil {
		return err
	}
	for _, value := range values {
		switch v := value.(type) {
		case string:
			if err := writeBulkStringRaw(w, v); err != nil {
				return err
			}
		case int64:
			if err := writeIntegerRaw(w, v); err != nil {
				return err
			}
		case []interface{}:
			if err := writeArrayRaw(w, v); err != nil {
				return err
			}
		default:
			if err := writeBulkStringRaw(w, fmt.Sprint(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeBulkStringRaw(w *bufio.Writer, value string) error {
	_, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(value), value)
	return err
}

func writeIntegerRaw(w *bufio.Writer, value int64) error {
	_, err := fmt.Fprintf(w, ":%d\r\n", value)
	return err
}

func writeError(w *bufio.Writer, msg string) error {
	if _, err := fmt.Fprintf(w, "-%s\r\n", msg); err != nil {
		return err
	}
	return w.Flush()
}
