package llm

import (
	"net"
	"net/http"
	"time"
)

// newHTTPClient builds the HTTP client shared by a provider instance. The
// configured timeout bounds the wait for response headers only, so long
// streaming bodies are not cut off.
func newHTTPClient(cfg ProviderConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	return &http.Client{
		Transport: &headerTransport{
			base:    transport,
			headers: cfg.Headers,
		},
	}
}

// headerTransport adds default headers to every request that does not
// already carry them.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for key, value := range t.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	return t.base.RoundTrip(req)
}
