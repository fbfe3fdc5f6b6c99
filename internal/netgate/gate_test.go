package netgate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestGateImmediateDelivery(t *testing.T) {
	g := New(false)
	var got []bool
	cancel := g.OnTransition(func(c bool) { got = append(got, c) })
	assert.Equal(t, []bool{false}, got)

	assert.True(t, g.Set(true))
	assert.False(t, g.Set(true), "same state is not a transition")
	assert.True(t, g.Set(false))
	assert.Equal(t, []bool{false, true, false}, got)

	cancel()
	g.Set(true)
	assert.Len(t, got, 3)
	assert.True(t, g.IsConnected())
}

func TestGateMultipleObservers(t *testing.T) {
	g := New(true)
	a, b := 0, 0
	g.OnTransition(func(bool) { a++ })
	g.OnTransition(func(bool) { b++ })
	g.Set(false)
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}

func TestPinger(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	g := New(false)
	p := &Pinger{Gate: g, URL: srv.URL, Logger: zerolog.Nop()}
	assert.True(t, p.Ping(context.Background()))
	assert.True(t, g.IsConnected())

	status.Store(http.StatusBadGateway)
	assert.False(t, p.Ping(context.Background()))
	assert.False(t, g.IsConnected())

	srv.Close()
	status.Store(http.StatusOK)
	assert.False(t, p.Ping(context.Background()))
}
