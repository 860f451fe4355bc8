package source

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
)

func word(n uint64) []byte {
	b := make([]byte, 32)
	new(big.Int).SetUint64(n).FillBytes(b)
	return b
}

// encodeCreateData ABI-encodes ((string,uint256), address).
func encodeCreateData(content string, domain uint64) string {
	var out []byte
	out = append(out, word(0x40)...) // tuple offset
	out = append(out, word(0xcafe)...)
	out = append(out, word(0x40)...) // string offset within tuple
	out = append(out, word(domain)...)
	out = append(out, word(uint64(len(content)))...)
	padded := make([]byte, (len(content)+31)/32*32)
	copy(padded, content)
	out = append(out, padded...)
	return "0x" + hex.EncodeToString(out)
}

func topicUint(n uint64) string { return "0x" + hex.EncodeToString(word(n)) }

func topicAddr(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
}

type fakeNode struct {
	mu      sync.Mutex
	head    uint64
	logs    []rpcLog
	filters []map[string]any
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	var result any
	switch req.Method {
	case "eth_blockNumber":
		result = hexUint(n.head)
	case "eth_getLogs":
		f := req.Params[0].(map[string]any)
		n.filters = append(n.filters, f)
		from, _ := parseHexUint(f["fromBlock"].(string))
		to, _ := parseHexUint(f["toBlock"].(string))
		out := []rpcLog{}
		for _, l := range n.logs {
			b, _ := parseHexUint(l.BlockNumber)
			if b >= from && b <= to {
				out = append(out, l)
			}
		}
		result = out
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func TestRPCFetchSinceDecodesLogs(t *testing.T) {
	owner := "0x" + strings.Repeat("ab", 20)
	node := &fakeNode{head: 120, logs: []rpcLog{
		{Topics: []string{"0xtopic", topicUint(42), topicAddr(owner)}, Data: encodeCreateData("QmLate", 0), BlockNumber: hexUint(115), LogIndex: "0x0"},
		{Topics: []string{"0xtopic", topicUint(41), topicAddr(owner)}, Data: encodeCreateData("QmEarly", 0), BlockNumber: hexUint(101), LogIndex: "0x1"},
		{Topics: []string{"0xtopic", topicUint(40), topicAddr(owner)}, Data: encodeCreateData("QmOld", 0), BlockNumber: hexUint(90)},
		{Topics: []string{"0xtopic"}, Data: "0x", BlockNumber: hexUint(110)},
	}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	src := NewRPC(config.RPCConfig{URL: srv.URL, Contract: "0xproj", Topic: "0xtopic", Version: "2", BlockRange: 10})
	evs, err := src.FetchSince(context.Background(), 100)
	require.NoError(t, err)

	require.Len(t, evs, 2)
	assert.Equal(t, model.RawEvent{ID: "41", Creator: owner, Locator: "QmEarly", Version: "2", Position: 101}, evs[0])
	assert.Equal(t, "42", evs[1].ID)
	assert.Equal(t, model.Position(115), evs[1].Position)

	// [100,109] [110,119] [120,120]
	node.mu.Lock()
	defer node.mu.Unlock()
	require.Len(t, node.filters, 3)
	assert.Equal(t, "0x64", node.filters[0]["fromBlock"])
	assert.Equal(t, "0x78", node.filters[2]["toBlock"])
	assert.Equal(t, "0xproj", node.filters[0]["address"])
}

func TestRPCHead(t *testing.T) {
	srv := httptest.NewServer(&fakeNode{head: 0x1234})
	defer srv.Close()

	head, err := NewRPC(config.RPCConfig{URL: srv.URL}).Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Position(0x1234), head)
}

func TestRPCCursorAheadOfHead(t *testing.T) {
	srv := httptest.NewServer(&fakeNode{head: 10})
	defer srv.Close()

	evs, err := NewRPC(config.RPCConfig{URL: srv.URL}).FetchSince(context.Background(), 11)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestRPCUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"header not found"}}`))
	}))
	defer srv.Close()

	_, err := NewRPC(config.RPCConfig{URL: srv.URL}).FetchSince(context.Background(), 0)
	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Contains(t, err.Error(), "header not found")
}

func TestDecodeMetadataContentRejectsTruncated(t *testing.T) {
	data, err := decodeHex(encodeCreateData("QmSomething", 0))
	require.NoError(t, err)

	got, err := decodeMetadataContent(data)
	require.NoError(t, err)
	assert.Equal(t, "QmSomething", got)

	_, err = decodeMetadataContent(data[:len(data)-40])
	assert.Error(t, err)
}
