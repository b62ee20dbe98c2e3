package floodgate

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyExtractor derives the rate limit key from an HTTP request.
// The key identifies the client the budget is tracked against: an IP
// address, an API key, an authenticated identity. The limiter treats the
// key as opaque.
type KeyExtractor func(*http.Request) (string, error)

// ExtractIP keys clients by the connection's remote IP address.
func ExtractIP() KeyExtractor {
	return func(r *http.Request) (string, error) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			// RemoteAddr may arrive without a port.
			ip = r.RemoteAddr
		}
		if ip == "" {
			return "", fmt.Errorf("%w: empty remote address", ErrKeyExtractionFailed)
		}
		return "ip:" + ip, nil
	}
}

// ExtractIPBehindProxy keys clients by IP, honoring X-Forwarded-For and
// X-Real-IP set by a reverse proxy before falling back to the remote
// address. Only use this when the service sits behind a trusted proxy;
// otherwise clients can spoof these headers to dodge their budget.
func ExtractIPBehindProxy() KeyExtractor {
	plain := ExtractIP()
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// The first entry in the list is the originating client.
			if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
				return "ip:" + ip, nil
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return "ip:" + xri, nil
		}
		return plain(r)
	}
}

// ExtractHeader keys clients by the value of the named header.
func ExtractHeader(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(name)
		if value == "" {
			return "", fmt.Errorf("%w: header %s missing or empty", ErrKeyExtractionFailed, name)
		}
		return fmt.Sprintf("header:%s:%s", name, value), nil
	}
}

// ExtractBearer keys clients by the bearer token in the Authorization header.
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			return "", fmt.Errorf("%w: Authorization header missing", ErrKeyExtractionFailed)
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", fmt.Errorf("%w: Authorization header is not a bearer token", ErrKeyExtractionFailed)
		}
		if parts[1] == "" {
			return "", fmt.Errorf("%w: empty bearer token", ErrKeyExtractionFailed)
		}
		return "bearer:" + parts[1], nil
	}
}

// ExtractCookie keys clients by the value of the named cookie.
func ExtractCookie(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(name)
		if err != nil {
			return "", fmt.Errorf("%w: cookie %s not found", ErrKeyExtractionFailed, name)
		}
		if cookie.Value == "" {
			return "", fmt.Errorf("%w: cookie %s has empty value", ErrKeyExtractionFailed, name)
		}
		return fmt.Sprintf("cookie:%s:%s", name, cookie.Value), nil
	}
}

// ExtractStatic always returns the same key, giving all clients one shared
// budget. Useful for protecting a downstream with a global ceiling.
func ExtractStatic(key string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		if key == "" {
			return "", fmt.Errorf("%w: static key is empty", ErrKeyExtractionFailed)
		}
		return key, nil
	}
}

// ExtractComposite tries each extractor in order and returns the first key
// produced. Typical use: prefer an API key, fall back to the client IP.
//
//	extractor := floodgate.ExtractComposite(
//	    floodgate.ExtractHeader("X-API-Key"),
//	    floodgate.ExtractIPBehindProxy(),
//	)
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) (string, error) {
		var lastErr error
		for _, extractor := range extractors {
			key, err := extractor(r)
			if err == nil && key != "" {
				return key, nil
			}
			lastErr = err
		}
		if lastErr != nil {
			return "", fmt.Errorf("%w: all extractors failed: %v", ErrKeyExtractionFailed, lastErr)
		}
		return "", fmt.Errorf("%w: no extractors provided", ErrKeyExtractionFailed)
	}
}

// ParseKeyExtractorConfig builds a KeyExtractor from a config string.
// Supported forms:
//   - "ip"
//   - "ip-proxy"
//   - "header:X-API-Key"
//   - "bearer"
//   - "cookie:session_id"
//   - "static:global"
func ParseKeyExtractorConfig(config string) (KeyExtractor, error) {
	parts := strings.SplitN(config, ":", 2)

	switch parts[0] {
	case "ip":
		return ExtractIP(), nil

	case "ip-proxy":
		return ExtractIPBehindProxy(), nil

	case "header":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("%w: header extractor requires format 'header:HeaderName'", ErrInvalidConfig)
		}
		return ExtractHeader(parts[1]), nil

	case "bearer":
		return ExtractBearer(), nil

	case "cookie":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("%w: cookie extractor requires format 'cookie:CookieName'", ErrInvalidConfig)
		}
		return ExtractCookie(parts[1]), nil

	case "static":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("%w: static extractor requires format 'static:key'", ErrInvalidConfig)
		}
		return ExtractStatic(parts[1]), nil

	default:
		return nil, fmt.Errorf("%w: unknown key extractor type: %s", ErrInvalidConfig, parts[0])
	}
}
