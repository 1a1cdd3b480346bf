package rpc_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/indexer"
	"github.com/tolelom/chestchain/internal/testutil"
	"github.com/tolelom/chestchain/rpc"
	"github.com/tolelom/chestchain/storage"
	"github.com/tolelom/chestchain/wallet"
)

const chainID = "test-chain"

type fixture struct {
	handler *rpc.Handler
	state   *storage.StateDB
	mempool *core.Mempool
	emitter *events.Emitter
}

// newFixture builds an RPC handler backed by in-memory state.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewMemDB()
	f := &fixture{
		state:   storage.NewStateDB(db),
		mempool: core.NewMempool(0),
		emitter: events.NewEmitter(nil),
	}
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	idx := indexer.New(db, f.emitter, nil)
	f.handler = rpc.NewHandler(bc, f.mempool, f.state, idx, chainID)
	return f
}

// dispatch round-trips the response through JSON, as a client would see it.
func (f *fixture) dispatch(t *testing.T, method string, params any) (json.RawMessage, *rpc.Error) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	resp := f.handler.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
	if resp.Error != nil {
		return nil, resp.Error
	}
	out, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	return out, nil
}

func TestGetBlockHeight(t *testing.T) {
	f := newFixture(t)
	res, rerr := f.dispatch(t, "getBlockHeight", struct{}{})
	require.Nil(t, rerr)
	assert.JSONEq(t, `0`, string(res))

	_, rerr = f.dispatch(t, "getBlock", map[string]int64{"height": 3})
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeNotFound, rerr.Code)
}

// TestGetPlayerNullWhenAbsent verifies an unknown player is null, not an
// error.
func TestGetPlayerNullWhenAbsent(t *testing.T) {
	f := newFixture(t)
	res, rerr := f.dispatch(t, "getPlayer", map[string]string{"id": "ghost"})
	require.Nil(t, rerr)
	assert.JSONEq(t, `null`, string(res))

	require.NoError(t, f.state.SetPlayer("alice", &core.Player{Keys: 2, KeysPerClaim: 1}))
	res, rerr = f.dispatch(t, "getPlayer", map[string]string{"id": "alice"})
	require.Nil(t, rerr)
	var p core.Player
	require.NoError(t, json.Unmarshal(res, &p))
	assert.Equal(t, uint32(2), p.Keys)

	_, rerr = f.dispatch(t, "getPlayer", map[string]string{})
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeInvalidParams, rerr.Code)
}

func TestGetSwapAndLists(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.SetSwap(&core.Swap{ID: "s1", Player: "alice", Status: core.SwapPending}))
	f.emitter.Emit(events.Event{Type: events.EventSwapInitiated, Data: map[string]any{"player": "alice", "swap_id": "s1"}})

	res, rerr := f.dispatch(t, "getSwap", map[string]string{"id": "s1"})
	require.Nil(t, rerr)
	var sw core.Swap
	require.NoError(t, json.Unmarshal(res, &sw))
	assert.Equal(t, core.SwapPending, sw.Status)

	_, rerr = f.dispatch(t, "getTransfer", map[string]string{"id": "t404"})
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeNotFound, rerr.Code)

	res, rerr = f.dispatch(t, "getSwapsByPlayer", map[string]string{"player": "alice"})
	require.Nil(t, rerr)
	assert.JSONEq(t, `["s1"]`, string(res))

	res, rerr = f.dispatch(t, "getTransfersByPlayer", map[string]string{"player": "alice"})
	require.Nil(t, rerr)
	assert.JSONEq(t, `[]`, string(res))
}

// TestSendTx verifies chain ID and type checks and that the server
// recomputes the call ID.
func TestSendTx(t *testing.T) {
	f := newFixture(t)
	w, _ := wallet.Generate()

	tx, _ := w.Call(chainID, core.TxSignIn, 0)
	realID := tx.ID
	tx.ID = "forged"
	res, rerr := f.dispatch(t, "sendTx", tx)
	require.Nil(t, rerr)
	assert.JSONEq(t, `{"tx_id":"`+realID+`"}`, string(res))
	assert.Equal(t, 1, f.mempool.Size())

	res, rerr = f.dispatch(t, "getMempoolSize", nil)
	require.Nil(t, rerr)
	assert.JSONEq(t, `1`, string(res))

	other, _ := w.Call("other-chain", core.TxSignIn, 0)
	_, rerr = f.dispatch(t, "sendTx", other)
	require.NotNil(t, rerr)
	assert.Contains(t, rerr.Message, "chain ID mismatch")

	bogus, _ := w.Call(chainID, core.TxType("mint_everything"), 0)
	_, rerr = f.dispatch(t, "sendTx", bogus)
	require.NotNil(t, rerr)
	assert.Contains(t, rerr.Message, "unknown call type")
}

func TestMethodNotFound(t *testing.T) {
	f := newFixture(t)
	_, rerr := f.dispatch(t, "getBalance", struct{}{})
	require.NotNil(t, rerr)
	assert.Equal(t, rpc.CodeMethodNotFound, rerr.Code)
}

// TestServerAuth exercises the HTTP layer: method, bearer token and
// envelope checks.
func TestServerAuth(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(rpc.NewServer(":0", f.handler, "tok", nil))
	defer srv.Close()

	post := func(auth, body string) rpc.Response {
		req, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewBufferString(body))
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out rpc.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	out := post("", `{"jsonrpc":"2.0","id":1,"method":"getBlockHeight"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpc.CodeUnauthorized, out.Error.Code)

	out = post("Bearer tok", `{"jsonrpc":"1.0","id":1,"method":"getBlockHeight"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpc.CodeInvalidRequest, out.Error.Code)

	out = post("Bearer tok", `{"jsonrpc":"2.0","id":7,"method":"getBlockHeight"}`)
	require.Nil(t, out.Error)
	assert.Equal(t, float64(7), out.ID)
	assert.Equal(t, float64(0), out.Result)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestResponseCarriesZeroAndNullResults verifies a successful 0 or null
// result stays on the wire and errors carry no result.
func TestResponseCarriesZeroAndNullResults(t *testing.T) {
	raw, err := json.Marshal(rpc.Response{JSONRPC: "2.0", ID: 1, Result: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":0}`, string(raw))

	raw, err = json.Marshal(rpc.Response{JSONRPC: "2.0", ID: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":null}`, string(raw))

	raw, err = json.Marshal(rpc.Response{JSONRPC: "2.0", ID: 3, Error: &rpc.Error{Code: rpc.CodeNotFound, Message: "gone"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"error":{"code":-32001,"message":"gone"}}`, string(raw))
}
