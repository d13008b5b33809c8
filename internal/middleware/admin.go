package middleware

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"

	"health-geo/internal/logger"
	"health-geo/internal/metrics"

	"github.com/gin-gonic/gin"
)

// AdminOptions configure the admin guard. An empty allowlist admits any address that
// presents the token.
type AdminOptions struct {
	Token        string
	AllowIPs     []string
	AllowCIDRs   []string
	AllowLocal   bool
	RealIPHeader string
}

// AdminGuard protects the ingestion and cache endpoints with a shared token and an
// optional IP/CIDR allowlist.
type AdminGuard struct {
	token        string
	allowIPs     map[string]struct{}
	allowCIDRs   []*net.IPNet
	realIPHeader string
}

func NewAdminGuard(o AdminOptions) (*AdminGuard, error) {
	g := &AdminGuard{token: o.Token, allowIPs: map[string]struct{}{}, realIPHeader: strings.TrimSpace(o.RealIPHeader)}
	for _, p := range o.AllowIPs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ip := net.ParseIP(p)
		if ip == nil {
			return nil, fmt.Errorf("admin allowlist: bad ip %q", p)
		}
		g.allowIPs[ip.String()] = struct{}{}
	}
	for _, c := range o.AllowCIDRs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("admin allowlist: %w", err)
		}
		g.allowCIDRs = append(g.allowCIDRs, n)
	}
	if o.AllowLocal {
		g.allowIPs["127.0.0.1"] = struct{}{}
		g.allowIPs["::1"] = struct{}{}
	}
	return g, nil
}

func (g *AdminGuard) restricted() bool { return len(g.allowIPs) > 0 || len(g.allowCIDRs) > 0 }

func (g *AdminGuard) allowed(ip net.IP) bool {
	if !g.restricted() {
		return true
	}
	if ip == nil {
		return false
	}
	if _, ok := g.allowIPs[ip.String()]; ok {
		return true
	}
	for _, n := range g.allowCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP prefers the first address in the configured real-ip header, then RemoteAddr.
func (g *AdminGuard) clientIP(r *http.Request) net.IP {
	if g.realIPHeader != "" {
		if raw := r.Header.Get(g.realIPHeader); raw != "" {
			first, _, _ := strings.Cut(raw, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip
			}
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

// Handler rejects with 403 when no token is configured, the x-admin-token header does not
// match, or the caller is outside the allowlist.
func (g *AdminGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := c.GetHeader("x-admin-token")
		if g.token == "" || subtle.ConstantTimeCompare([]byte(t), []byte(g.token)) != 1 {
			metrics.AdminDeniedTotal.WithLabelValues("token").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		ip := g.clientIP(c.Request)
		if !g.allowed(ip) {
			metrics.AdminDeniedTotal.WithLabelValues("ip").Inc()
			logger.L().Warn("admin_block", "ip", ip.String(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
