package router

import (
	"net"

	"github.com/labstack/echo/v4"
)

// IPExtractor picks how c.RealIP resolves the client address, which also
// keys the login limiter. Without trusted proxies it is the socket peer, so
// a client cannot choose its own key through X-Forwarded-For. With proxies,
// only entries appended by those ranges are honored; echo's default trust of
// loopback and private ranges is switched off.
func IPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
