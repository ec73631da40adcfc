package session

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingTransportKeepsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad request"}`)
	}))
	defer srv.Close()

	var lines []string
	DebugLog = func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	defer func() { DebugLog = nil }()

	s := New(0)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sk-secret")

	resp, err := s.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"error":"bad request"}`, string(body))

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "status code 400")
	assert.Contains(t, joined, "Authorization: ***")
	assert.NotContains(t, joined, "sk-secret")
}

func TestNewWithoutDebugUsesPlainTransport(t *testing.T) {
	DebugLog = nil
	s := New(0)
	_, ok := s.Client.Transport.(*LoggingTransport)
	assert.False(t, ok)
}
