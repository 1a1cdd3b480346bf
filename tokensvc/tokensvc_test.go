package tokensvc

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryTransferIdempotent verifies a transfer ID is applied once.
func TestMemoryTransferIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("treasury", big.NewInt(100))

	require.NoError(t, m.Transfer(ctx, "t1", "alice", big.NewInt(30)))
	require.NoError(t, m.Transfer(ctx, "t1", "alice", big.NewInt(30)))

	bal, err := m.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "30", bal.String())
	bal, _ = m.BalanceOf(ctx, "treasury")
	assert.Equal(t, "70", bal.String())

	err = m.Transfer(ctx, "t2", "alice", big.NewInt(71))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestMemoryFailWith(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("treasury", nil)
	boom := errors.New("unavailable")

	m.FailWith(methodBalanceOf, boom)
	_, err := m.BalanceOf(ctx, "treasury")
	assert.ErrorIs(t, err, boom)

	m.FailWith(methodBalanceOf, nil)
	bal, err := m.BalanceOf(ctx, "treasury")
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())
}

func newServer(t *testing.T, svc Service, secret string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHTTPHandler(svc, secret))
	t.Cleanup(srv.Close)
	return srv
}

// TestHTTPRoundTrip drives the client against the handler over a real
// HTTP connection.
func TestHTTPRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory("treasury", big.NewInt(1_000))
	srv := newServer(t, mem, "s3cret")
	c := NewHTTPClient(srv.URL+"/", "gift-token", "s3cret", time.Second)

	bal, err := c.BalanceOf(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())

	require.NoError(t, c.Transfer(ctx, "t1", "bob", big.NewInt(250)))
	got, _ := mem.BalanceOf(ctx, "bob")
	assert.Equal(t, "250", got.String())

	err = c.Transfer(ctx, "t2", "bob", big.NewInt(5_000))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	mem.FailWith(methodBalanceOf, errors.New("rpc down"))
	_, err = c.BalanceOf(ctx, "treasury")
	assert.ErrorContains(t, err, "rpc down")
}

func TestHTTPRejectsBadSignature(t *testing.T) {
	srv := newServer(t, NewMemory("treasury", big.NewInt(1)), "right")
	c := NewHTTPClient(srv.URL, "gift-token", "wrong", time.Second)

	_, err := c.BalanceOf(context.Background(), "treasury")
	assert.ErrorContains(t, err, "bad signature")
}

// TestHTTPClientHeaders verifies each request carries a unique request ID
// and an HMAC of the exact body.
func TestHTTPClientHeaders(t *testing.T) {
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		_, _ = body.ReadFrom(r.Body)
		assert.Equal(t, sign("k", body.Bytes()), r.Header.Get(headerSignature))
		assert.Equal(t, "gift-token", r.Header.Get("X-Token-Contract"))
		assert.Equal(t, "/"+methodBalanceOf, r.URL.Path)
		ids = append(ids, r.Header.Get(headerRequestID))
		writeResponse(w, http.StatusOK, response{OK: true, Balance: "12"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "gift-token", "k", time.Second)
	for i := 0; i < 2; i++ {
		bal, err := c.BalanceOf(context.Background(), "treasury")
		require.NoError(t, err)
		assert.Equal(t, "12", bal.String())
	}
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestHTTPClientMalformedBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusOK, response{OK: true, Balance: "-3"})
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "c", "", time.Second).BalanceOf(context.Background(), "x")
	assert.ErrorContains(t, err, "malformed balance")
}
