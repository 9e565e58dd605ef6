package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			WriteJSONOK(w, map[string]string{"version": "1.2.3", "q": r.URL.Query().Get("q")})
		case "/api/missing":
			NotFound(w, "no such set")
		default:
			http.Error(w, "boom", http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL+"/", nil)
	var got map[string]string
	require.NoError(t, c.GetJSON(context.Background(), "/api/version", url.Values{"q": {"x"}}, &got))
	assert.Equal(t, "1.2.3", got["version"])
	assert.Equal(t, "x", got["q"])

	err := c.GetJSON(context.Background(), "/api/missing", nil, &got)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "no such set", apiErr.Message)

	err = c.GetJSON(context.Background(), "/other", nil, &got)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestAPIClient_Mock(t *testing.T) {
	mock := &MockHTTPClient{DoFunc: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/fail" {
			return nil, errors.New("connection refused")
		}
		return MockResponse(http.StatusOK, `not json`), nil
	}}
	c := NewAPIClient("http://track.local", mock)

	var v map[string]interface{}
	assert.ErrorContains(t, c.GetJSON(context.Background(), "/fail", nil, &v), "connection refused")
	assert.ErrorContains(t, c.GetJSON(context.Background(), "/ok", nil, &v), "decode /ok")
	require.Len(t, mock.Requests, 2)
	assert.Equal(t, "application/json", mock.Requests[1].Header.Get("Accept"))
}
