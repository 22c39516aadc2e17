package middleware

import (
	"context"
	"net/http"
	"net/netip"

	"menu3d/internal/infra/geoip"
)

const countryKey contextKey = "country"

// ClientCountry stores the caller's ISO country code in the request context.
// A nil resolver makes it a no-op.
func ClientCountry(resolver geoip.CountryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if resolver == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if code, ok := resolver.Country(remoteAddr(r.RemoteAddr)); ok {
				r = r.WithContext(context.WithValue(r.Context(), countryKey, code))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// remoteAddr accepts host:port and, after RealIP rewrites it, a bare address.
func remoteAddr(raw string) netip.Addr {
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr()
	}
	addr, _ := netip.ParseAddr(raw)
	return addr
}

func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(countryKey).(string); ok {
		return v
	}
	return ""
}
