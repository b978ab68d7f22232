package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixmyward/ward-service/internal/api/dto"
)

func TestLoginKeepsTokenForLaterCalls(t *testing.T) {
	var seenAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var req dto.LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "CITIZEN", req.Role)
			_, _ = w.Write([]byte(`{"data":{"user":{"id":"u1","role":"CITIZEN","ward":"HSR Layout"},"auth":{"token":"tok-1"}}}`))
		case "/issues":
			seenAuth = r.Header.Get("Authorization")
			assert.Equal(t, "HSR Layout", r.URL.Query().Get("ward"))
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			_, _ = w.Write([]byte(`{"data":[{"id":"i1","status":"PENDING"}],"page":2,"page_size":20}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	session, err := c.Login(context.Background(), dto.LoginRequest{Username: "asha", Password: "secret1", Role: "CITIZEN"})
	require.NoError(t, err)
	assert.Equal(t, "u1", session.User.ID)
	assert.Equal(t, "tok-1", c.Token())

	issues, err := c.ListIssues(context.Background(), IssueQuery{Ward: "HSR Layout", Page: 2})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "PENDING", issues[0].Status)
	assert.Equal(t, "Bearer tok-1", seenAuth)
}

func TestAPIErrorCarriesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"can only update issues in your ward"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok"))
	_, err := c.UpdateStatus(context.Background(), "i1", dto.UpdateStatusRequest{Status: "RESOLVED"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
}

func TestNoContentResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL).DeleteIssue(context.Background(), "i1"))
}

func TestWebsocketURL(t *testing.T) {
	u, err := New("https://api.fixmyward.in/v1", WithToken("a b")).WebsocketURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://api.fixmyward.in/v1/ws?token=a+b", u)

	u, err = New("http://localhost:5000").WebsocketURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:5000/ws?token=", u)
}
