package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/remote"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

func remoteTable(baseURL string, forwardAuth bool) *sdata.Table {
	return &sdata.Table{
		ID: "verblijfsobjecten",
		Remote: &sdata.RemoteDescriptor{
			BaseURL:     baseURL + "/{tableId}",
			ForwardAuth: forwardAuth,
		},
	}
}

func TestCallRewritesPathAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verblijfsobjecten", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	c := remote.New(remoteTable(srv.URL, false))
	resp, err := c.Call(context.Background(), remote.CallParams{ClientIP: "10.0.0.1"})
	require.Nil(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(resp.Body))
}

func TestCallForwards401As403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
	}))
	defer srv.Close()

	c := remote.New(remoteTable(srv.URL, false))
	_, err := c.Call(context.Background(), remote.CallParams{})
	require.NotNil(t, err)
	assert.Equal(t, 403, err.Kind.Status())
}

func TestCallPassesThrough404ProblemJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(404)
		_, _ = w.Write([]byte(`{"title":"not found"}`))
	}))
	defer srv.Close()

	c := remote.New(remoteTable(srv.URL, false))
	_, err := c.Call(context.Background(), remote.CallParams{})
	require.NotNil(t, err)
	assert.Equal(t, apierror.KindNotFound, err.Kind)
}

func TestCallUnexpectedStatusBecomes502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	c := remote.New(remoteTable(srv.URL, false))
	_, err := c.Call(context.Background(), remote.CallParams{})
	require.NotNil(t, err)
	assert.Equal(t, 502, err.Kind.Status())
}

func TestCallForwardsAuthorizationOnlyWhenConfigured(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := remote.New(remoteTable(srv.URL, true))
	_, err := c.Call(context.Background(), remote.CallParams{Authorization: "Bearer xyz"})
	require.Nil(t, err)
	assert.Equal(t, "Bearer xyz", seen)
}

func TestCallRejectsUnsupportedLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("remote should not have been called")
	}))
	defer srv.Close()

	c := remote.New(remoteTable(srv.URL, false))
	q := url.Values{"naam[like]": {"foo"}}
	_, err := c.Call(context.Background(), remote.CallParams{Query: q})
	require.NotNil(t, err)
	assert.Equal(t, apierror.KindInvalidFilterSyntax, err.Kind)
}
