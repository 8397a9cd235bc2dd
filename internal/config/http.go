package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// HTTPConfig controls how the server sees its clients. With no trusted
// proxies the client IP is the socket peer and forwarding headers are ignored.
type HTTPConfig struct {
	// TrustedProxies lists CIDRs (or bare IPs) of reverse proxies whose
	// X-Forwarded-For entries may name the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

var ErrInvalidTrustedProxy = errors.New("TRUSTED_PROXIES entries must be IPs or CIDRs")

// TrustedNets parses TrustedProxies. Bare IPs become single-host ranges.
func (c HTTPConfig) TrustedNets() ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, raw := range c.TrustedProxies {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidTrustedProxy, s)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTrustedProxy, s)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func (c HTTPConfig) validate() error {
	_, err := c.TrustedNets()
	return err
}
