package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleRoot(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handleRoot(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

func TestPostOnly(t *testing.T) {
	t.Run("rejects GET", func(t *testing.T) {
		called := false
		handler := postOnly(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/envelopes", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.False(t, called)
	})

	t.Run("allows POST", func(t *testing.T) {
		called := false
		handler := postOnly(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/envelopes", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, called)
	})
}

func TestAutoDownloadPolicy(t *testing.T) {
	assert.True(t, autoDownloadPolicy{permitted: true}.AutoDownloadPermitted(nil))
	assert.False(t, autoDownloadPolicy{permitted: false}.AutoDownloadPermitted(nil))
}
