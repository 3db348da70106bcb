package security

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/smartpcr/pass-cancel/internal/metrics"
)

// IPAllowList restricts requests to a configured set of client IPs.
// Entries may be exact addresses ("10.0.0.5") or CIDR ranges
// ("10.0.0.0/24"). An empty list allows everything.
type IPAllowList struct {
	mu         sync.RWMutex
	allowedIPs map[string]struct{}
	allowedNet []*net.IPNet
}

// NewIPAllowList builds an allow list from configured entries.
func NewIPAllowList(allowed []string) (*IPAllowList, error) {
	wl := &IPAllowList{
		allowedIPs: make(map[string]struct{}),
	}

	for _, entry := range allowed {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			wl.allowedNet = append(wl.allowedNet, network)
			continue
		}
		if net.ParseIP(entry) == nil {
			return nil, fmt.Errorf("invalid allow list entry %q", entry)
		}
		wl.allowedIPs[entry] = struct{}{}
	}

	return wl, nil
}

func (wl *IPAllowList) isAllowed(ip string) bool {
	wl.mu.RLock()
	defer wl.mu.RUnlock()

	if len(wl.allowedIPs) == 0 && len(wl.allowedNet) == 0 {
		return true
	}

	if _, exists := wl.allowedIPs[ip]; exists {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range wl.allowedNet {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// Middleware rejects requests from addresses outside the allow list.
func (wl *IPAllowList) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getIP(r)

		// Strip a port if the forwarded value carried one
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		if !wl.isAllowed(ip) {
			metrics.ErrorsTotal.WithLabelValues("ip_forbidden").Inc()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
