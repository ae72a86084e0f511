package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeValkey speaks enough RESP for PING/GET/SET/DEL.
type fakeValkey struct {
	mu    sync.Mutex
	store map[string]string
	ln    net.Listener
}

func startFakeValkey(t *testing.T) *fakeValkey {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeValkey{store: make(map[string]string), ln: ln}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeValkey) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeValkey) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		fmt.Fprint(conn, f.exec(args))
	}
}

func (f *fakeValkey) exec(args []string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "GET":
		v, ok := f.store[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	case "SET":
		nx := strings.EqualFold(args[len(args)-1], "NX")
		if _, exists := f.store[args[1]]; nx && exists {
			return "$-1\r\n"
		}
		f.store[args[1]] = args[2]
		return "+OK\r\n"
	case "DEL":
		delete(f.store, args[1])
		return ":1\r\n"
	default:
		return "-ERR unknown command\r\n"
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(header[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(sizeLine[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	server := startFakeValkey(t)
	provider, err := NewValkeyProvider(ValkeyConfig{Addr: server.ln.Addr().String()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx := context.Background()

	if _, err := provider.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := provider.Set(ctx, "events", []byte(`{"n":1}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := provider.Get(ctx, "events")
	if err != nil || string(got) != `{"n":1}` {
		t.Fatalf("unexpected get result %q, %v", got, err)
	}

	ok, err := provider.SetNX(ctx, "lock", []byte("a"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win: %v %v", ok, err)
	}
	ok, err = provider.SetNX(ctx, "lock", []byte("b"), time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to lose: %v %v", ok, err)
	}
	if err := provider.Del(ctx, "lock"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, _ = provider.SetNX(ctx, "lock", []byte("c"), time.Minute)
	if !ok {
		t.Fatalf("expected SetNX after Del to win")
	}
}

func TestNewValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryProvider()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := m.Get(ctx, "k"); err != nil || string(v) != "v" {
		t.Fatalf("unexpected get %q %v", v, err)
	}
	now = now.Add(2 * time.Second)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestTryLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryProvider()

	first, err := TryLock(ctx, m, "batch:daily", time.Minute)
	if err != nil || first == nil {
		t.Fatalf("expected lock, got %v %v", first, err)
	}
	second, err := TryLock(ctx, m, "batch:daily", time.Minute)
	if err != nil || second != nil {
		t.Fatalf("expected contended lock to return nil, got %v %v", second, err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	third, _ := TryLock(ctx, m, "batch:daily", time.Minute)
	if third == nil {
		t.Fatalf("expected lock after release")
	}

	noop, _ := TryLock(ctx, NoopProvider{}, "x", time.Minute)
	if noop == nil {
		t.Fatalf("noop provider should always grant the lock")
	}
}
