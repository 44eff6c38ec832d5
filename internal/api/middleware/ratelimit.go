// ratelimit.go — ограничение частоты запросов к /auth/* по IP клиента (token bucket).
package middleware

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/arturkryukov/container-manager/internal/api/errors"
)

// bucketTTL — через сколько простоя bucket клиента удаляется.
const bucketTTL = 5 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter — token bucket на каждый IP клиента.
type IPRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	trusted []netip.Prefix
	now     func() time.Time
}

// NewIPRateLimiter создаёт limiter: rps запросов в секунду, всплеск burst.
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// WithTrustedProxies задаёт сети прокси, чей X-Forwarded-For учитывается.
// Без них ключом bucket всегда служит адрес соединения.
func (l *IPRateLimiter) WithTrustedProxies(prefixes []netip.Prefix) *IPRateLimiter {
	l.trusted = prefixes
	return l
}

// Allow расходует токен клиента ip. Заодно удаляет давно простаивающие buckets.
func (l *IPRateLimiter) Allow(ip string) bool {
	ok, _ := l.allow(ip)
	return ok
}

// allow дополнительно возвращает, через сколько появится следующий токен.
func (l *IPRateLimiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketTTL {
			delete(l.buckets, k)
		}
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	if b.lim.AllowN(now, 1) {
		return true, 0
	}

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// Middleware возвращает HTTP middleware, отвечающий 429 при превышении лимита.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.allow(l.clientIP(r))
			if !ok {
				w.Header().Set("Retry-After", retryAfter(wait))
				apierrors.RateLimitExceeded(w, "Слишком много запросов, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter — значение заголовка Retry-After в целых секундах, не меньше 1.
func retryAfter(wait time.Duration) string {
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// clientIP возвращает IP клиента. X-Forwarded-For читается только если
// соединение пришло от доверенного прокси: цепочка просматривается справа
// налево, первый недоверенный адрес и есть клиент.
func (l *IPRateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !l.isTrusted(peer) {
		return peer
	}

	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return peer
	}
	hops := strings.Split(strings.Join(xff, ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if _, err := netip.ParseAddr(hop); err != nil {
			// Мусор в цепочке: дальше доверять нельзя
			return peer
		}
		if !l.isTrusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

func (l *IPRateLimiter) isTrusted(ip string) bool {
	if len(l.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
