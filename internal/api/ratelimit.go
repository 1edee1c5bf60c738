package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ClientGateConfig bounds what a single client IP may do to the API
// surface: how fast it may hit the HTTP endpoints and how many
// websocket connections it may hold open at once.
type ClientGateConfig struct {
	RequestsPerSecond float64
	Burst             int
	MaxSocketsPerIP   int
	CleanupInterval   time.Duration
}

// DefaultClientGateConfig is tuned for a small room server: enough
// headroom for a lobby of clients behind one NAT, tight enough that a
// single address cannot spam /room up to the directory's room cap.
var DefaultClientGateConfig = ClientGateConfig{
	RequestsPerSecond: 10,
	Burst:             20,
	MaxSocketsPerIP:   20,
	CleanupInterval:   5 * time.Minute,
}

// clientEntry carries both budgets for one IP. lastSeen is unix
// nanoseconds, updated atomically so the request path and the upgrade
// path can touch the same entry without a lock.
type clientEntry struct {
	requests *rate.Limiter
	sockets  int32
	lastSeen int64
}

// ClientGate is the per-IP admission control for the HTTP layer. One
// entry per address holds the request token bucket and the live
// socket count together, so a single periodic sweep can retire idle
// clients instead of two limiters coordinating separate maps.
type ClientGate struct {
	clients  sync.Map // map[string]*clientEntry
	config   ClientGateConfig
	stopChan chan struct{}
	stopOnce sync.Once

	allowedRequests  uint64
	rejectedRequests uint64
	rejectedSockets  uint64
}

func NewClientGate(cfg ClientGateConfig) *ClientGate {
	g := &ClientGate{config: cfg, stopChan: make(chan struct{})}
	go g.cleanupLoop()
	return g
}

// Stop terminates the cleanup goroutine.
func (g *ClientGate) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
}

func (g *ClientGate) entry(ip string) *clientEntry {
	now := time.Now().UnixNano()
	if v, ok := g.clients.Load(ip); ok {
		e := v.(*clientEntry)
		atomic.StoreInt64(&e.lastSeen, now)
		return e
	}
	e := &clientEntry{
		requests: rate.NewLimiter(rate.Limit(g.config.RequestsPerSecond), g.config.Burst),
		lastSeen: now,
	}
	actual, _ := g.clients.LoadOrStore(ip, e)
	return actual.(*clientEntry)
}

// AllowRequest reports whether an HTTP request from ip fits its
// token budget.
func (g *ClientGate) AllowRequest(ip string) bool {
	if g.entry(ip).requests.Allow() {
		atomic.AddUint64(&g.allowedRequests, 1)
		return true
	}
	atomic.AddUint64(&g.rejectedRequests, 1)
	return false
}

// AcquireSocket reserves one websocket slot for ip, failing once the
// address already holds MaxSocketsPerIP connections. Every successful
// acquire must be paired with a ReleaseSocket.
func (g *ClientGate) AcquireSocket(ip string) bool {
	e := g.entry(ip)
	for {
		cur := atomic.LoadInt32(&e.sockets)
		if int(cur) >= g.config.MaxSocketsPerIP {
			atomic.AddUint64(&g.rejectedSockets, 1)
			return false
		}
		if atomic.CompareAndSwapInt32(&e.sockets, cur, cur+1) {
			return true
		}
	}
}

// ReleaseSocket returns a slot taken by AcquireSocket.
func (g *ClientGate) ReleaseSocket(ip string) {
	if v, ok := g.clients.Load(ip); ok {
		atomic.AddInt32(&v.(*clientEntry).sockets, -1)
	}
}

// SocketCount reports how many connections ip currently holds.
func (g *ClientGate) SocketCount(ip string) int {
	if v, ok := g.clients.Load(ip); ok {
		return int(atomic.LoadInt32(&v.(*clientEntry).sockets))
	}
	return 0
}

// Middleware rejects over-budget HTTP requests with 429 before they
// reach the router.
func (g *ClientGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.AllowRequest(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats reports admission counters for monitoring.
func (g *ClientGate) Stats() map[string]uint64 {
	return map[string]uint64{
		"allowed_requests":  atomic.LoadUint64(&g.allowedRequests),
		"rejected_requests": atomic.LoadUint64(&g.rejectedRequests),
		"rejected_sockets":  atomic.LoadUint64(&g.rejectedSockets),
	}
}

// cleanupLoop retires entries that have gone quiet and hold no open
// sockets, so abandoned addresses don't accumulate forever. An entry
// with a live connection is never swept, however old its last HTTP
// request.
func (g *ClientGate) cleanupLoop() {
	ticker := time.NewTicker(g.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * g.config.CleanupInterval).UnixNano()
			g.clients.Range(func(key, value interface{}) bool {
				e := value.(*clientEntry)
				if atomic.LoadInt64(&e.lastSeen) < cutoff && atomic.LoadInt32(&e.sockets) == 0 {
					g.clients.Delete(key)
				}
				return true
			})
		}
	}
}

// GetClientIP extracts the client address, preferring the headers a
// deployment behind a proxy sets. X-Forwarded-For can be spoofed when
// the server is exposed directly; the result is only ever used as a
// rate-limit key, never as an identity.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// AllowedOrigins lists exact origins a browser client may connect from,
// on top of the loopback hosts IsAllowedOrigin already accepts by
// prefix on any port. By default it holds only the bare loopback
// origins.
var AllowedOrigins = []string{
	"http://localhost",
	"http://127.0.0.1",
}

// IsAllowedOrigin reports whether a websocket Origin header is
// acceptable.
func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, allowed := range AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
