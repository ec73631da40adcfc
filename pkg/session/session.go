package session

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

var DebugLog func(string, ...interface{})

// Session holds the HTTP client shared by the teacher providers and the
// model downloader.
type Session struct {
	Client *http.Client
}

type LoggingTransport struct {
	Transport http.RoundTripper
}

var sensitiveHeaders = map[string]bool{
	"Authorization":  true,
	"X-Goog-Api-Key": true,
	"Api-Key":        true,
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if DebugLog != nil {
		DebugLog("%s %s", req.Method, req.URL.Redacted())
		if headers := describeHeaders(req.Header); headers != "" {
			DebugLog("request headers: %s", headers)
		}
	}

	start := time.Now()
	resp, err := t.Transport.RoundTrip(req)

	if DebugLog != nil {
		host := req.URL.Hostname()
		if err != nil {
			DebugLog("request to %s failed: %v", host, err)
			return resp, err
		}

		DebugLog("response from %s: status code %d in %s", host, resp.StatusCode, time.Since(start).Round(time.Millisecond))

		if resp.StatusCode >= 400 && resp.Body != nil {
			// put the peeked bytes back so callers still see the full body
			peek, readErr := io.ReadAll(io.LimitReader(resp.Body, 500))
			if readErr == nil && len(peek) > 0 {
				DebugLog("error response body: %s", string(peek))
			}
			resp.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(peek), resp.Body), resp.Body}
		}
	}

	return resp, err
}

func describeHeaders(h http.Header) string {
	var headers []string
	for k, v := range h {
		if k == "User-Agent" {
			continue
		}
		value := strings.Join(v, ", ")
		if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
			value = "***"
		}
		headers = append(headers, fmt.Sprintf("%s: %s", k, value))
	}
	sort.Strings(headers)
	return strings.Join(headers, " | ")
}

// New builds a session whose client gives up after timeout. A zero timeout
// means no client-side limit.
func New(timeout time.Duration) *Session {
	baseTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	var transport http.RoundTripper = baseTransport
	if DebugLog != nil {
		transport = &LoggingTransport{Transport: baseTransport}
	}

	return &Session{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (s *Session) Close() {
	s.Client.CloseIdleConnections()
}
