package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyProvider implements Provider over the RESP protocol. Each call opens a
// short-lived connection; the engine issues a handful of commands per batch run.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// NewValkeyProvider validates cfg and pings the server so bad credentials fail at startup.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	withDefaults(&cfg)
	p := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	r, err := p.do(ctx, "PING")
	if err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	if r.kind != kindStatus || r.text() != "PONG" {
		return nil, fmt.Errorf("unexpected PING reply %q", r.text())
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := p.do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	switch r.kind {
	case kindNil:
		return nil, ErrCacheMiss
	case kindBulk:
		return r.data, nil
	default:
		return nil, fmt.Errorf("unexpected GET reply kind %q", r.kind)
	}
}

// Set stores bytes with the provided TTL.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r, err := p.do(ctx, setArgs(key, value, ttl, false)...)
	if err != nil {
		return err
	}
	if r.kind != kindStatus || r.text() != "OK" {
		return fmt.Errorf("unexpected SET reply %q", r.text())
	}
	return nil
}

// SetNX stores the value only if the key does not exist.
func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	r, err := p.do(ctx, setArgs(key, value, ttl, true)...)
	if err != nil {
		return false, err
	}
	switch r.kind {
	case kindStatus:
		return true, nil
	case kindNil:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected SET NX reply kind %q", r.kind)
	}
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", key)
	return err
}

// Close is a no-op; connections are not pooled.
func (p *ValkeyProvider) Close() error { return nil }

func setArgs(key string, value []byte, ttl time.Duration, onlyIfAbsent bool) []string {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	if onlyIfAbsent {
		args = append(args, "NX")
	}
	return args
}

// do runs one command on a fresh authenticated connection, retrying transient network errors.
func (p *ValkeyProvider) do(ctx context.Context, args ...string) (reply, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return reply{}, err
		}
		r, err := p.once(ctx, args)
		if err == nil {
			return r, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		select {
		case <-ctx.Done():
			return reply{}, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * 25 * time.Millisecond):
		}
	}
	return reply{}, lastErr
}

func (p *ValkeyProvider) once(ctx context.Context, args []string) (reply, error) {
	c, err := p.dial(ctx)
	if err != nil {
		return reply{}, err
	}
	defer c.Close()

	if p.cfg.Password != "" {
		auth := []string{"AUTH", p.cfg.Password}
		if p.cfg.Username != "" {
			auth = []string{"AUTH", p.cfg.Username, p.cfg.Password}
		}
		if err := expectOK(c.roundTrip(auth)); err != nil {
			return reply{}, fmt.Errorf("auth: %w", err)
		}
	}
	if p.cfg.DB > 0 {
		if err := expectOK(c.roundTrip([]string{"SELECT", strconv.Itoa(p.cfg.DB)})); err != nil {
			return reply{}, fmt.Errorf("select db %d: %w", p.cfg.DB, err)
		}
	}
	return c.roundTrip(args)
}

func (p *ValkeyProvider) dial(ctx context.Context) (*respConn, error) {
	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		host, _, splitErr := net.SplitHostPort(p.cfg.Addr)
		if splitErr != nil {
			host = p.cfg.Addr
		}
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}}
		conn, err = td.DialContext(ctx, "tcp", p.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return &respConn{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn), cfg: p.cfg}, nil
}

type replyKind string

const (
	kindStatus  replyKind = "status"
	kindBulk    replyKind = "bulk"
	kindInteger replyKind = "integer"
	kindNil     replyKind = "nil"
)

type reply struct {
	kind replyKind
	data []byte
}

func (r reply) text() string { return string(r.data) }

func expectOK(r reply, err error) error {
	if err != nil {
		return err
	}
	if r.kind != kindStatus || !strings.EqualFold(r.text(), "OK") {
		return fmt.Errorf("unexpected reply %q", r.text())
	}
	return nil
}

// serverError is an error reply ("-ERR ...") sent by the server.
type serverError string

func (e serverError) Error() string { return string(e) }

type respConn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	cfg  ValkeyConfig
}

func (c *respConn) Close() error { return c.conn.Close() }

func (c *respConn) roundTrip(args []string) (reply, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return reply{}, err
	}
	fmt.Fprintf(c.w, "*%d\r\n", len(args))
	for _, a := range args {
		fmt.Fprintf(c.w, "$%d\r\n%s\r\n", len(a), a)
	}
	if err := c.w.Flush(); err != nil {
		return reply{}, err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return reply{}, err
	}
	return c.read()
}

func (c *respConn) read() (reply, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return reply{}, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return reply{}, errors.New("empty RESP line")
	}
	body := line[1:]
	switch line[0] {
	case '+':
		return reply{kind: kindStatus, data: []byte(body)}, nil
	case '-':
		return reply{}, serverError(body)
	case ':':
		return reply{kind: kindInteger, data: []byte(body)}, nil
	case '_':
		return reply{kind: kindNil}, nil
	case '$':
		size, err := strconv.Atoi(body)
		if err != nil {
			return reply{}, fmt.Errorf("bad bulk length %q: %w", body, err)
		}
		if size < 0 {
			return reply{kind: kindNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return reply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return reply{}, errors.New("bulk string missing CRLF")
		}
		return reply{kind: kindBulk, data: buf[:size]}, nil
	default:
		return reply{}, fmt.Errorf("unexpected RESP prefix %q", line[0])
	}
}

func withDefaults(cfg *ValkeyConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

func isTransient(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
