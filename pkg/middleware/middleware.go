package middleware

import "net/http"

// Middleware decorates an outgoing transport.
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Chain wraps base so that the first middleware sees the request first.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// StaticHeaders sets every header in h on each request that does not carry it yet.
func StaticHeaders(h http.Header) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			r = r.Clone(r.Context())
			for key, values := range h {
				if r.Header.Get(key) != "" {
					continue
				}
				for _, v := range values {
					r.Header.Add(key, v)
				}
			}
			return next.RoundTrip(r)
		})
	}
}
