package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
	"github.com/filipviz/juicebox-tweeter/internal/util"
)

// rpcSource reads creation events straight from contract logs. Positions
// are block numbers. The log layout is that of JBProjects.Create:
//
//	Create(uint256 indexed projectId, address indexed owner,
//	       (string content, uint256 domain) metadata, address caller)
type rpcSource struct {
	cfg    config.RPCConfig
	client *http.Client
	nextID atomic.Uint64
}

func NewRPC(cfg config.RPCConfig) *rpcSource {
	to := cfg.HTTP.Timeout
	if to == 0 {
		to = 15 * time.Second
	}
	if cfg.BlockRange == 0 {
		cfg.BlockRange = 2000
	}
	return &rpcSource{cfg: cfg, client: util.NewHTTPClient(to)}
}

func (r *rpcSource) Name() string { return "rpc" }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type rpcLog struct {
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

func (r *rpcSource) call(ctx context.Context, method string, params []any, out any) error {
	raw, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: r.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}
	return util.RetryWith(ctx, r.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(raw))
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if ua := r.cfg.HTTP.UserAgent; ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		if err := checkStatus("rpc", resp); err != nil {
			return err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		var rr rpcResponse
		if err := json.Unmarshal(body, &rr); err != nil {
			return fmt.Errorf("rpc %s: decode: %w", method, err)
		}
		if rr.Error != nil {
			return fmt.Errorf("rpc %s: %d %s", method, rr.Error.Code, rr.Error.Message)
		}
		return json.Unmarshal(rr.Result, out)
	})
}

func (r *rpcSource) Head(ctx context.Context) (model.Position, error) {
	var hexNum string
	if err := r.call(ctx, "eth_blockNumber", []any{}, &hexNum); err != nil {
		return 0, unavailable(r.Name(), err)
	}
	n, err := parseHexUint(hexNum)
	if err != nil {
		return 0, unavailable(r.Name(), err)
	}
	return model.Position(n), nil
}

func (r *rpcSource) FetchSince(ctx context.Context, pos model.Position) ([]model.RawEvent, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return nil, err
	}
	if pos > head {
		return nil, nil
	}

	var all []model.RawEvent
	for from := uint64(pos); from <= uint64(head); from += r.cfg.BlockRange {
		to := from + r.cfg.BlockRange - 1
		if to > uint64(head) {
			to = uint64(head)
		}
		filter := map[string]any{
			"fromBlock": hexUint(from),
			"toBlock":   hexUint(to),
			"address":   r.cfg.Contract,
			"topics":    []string{r.cfg.Topic},
		}
		var logs []rpcLog
		if err := r.call(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
			return nil, unavailable(r.Name(), err)
		}
		sort.SliceStable(logs, func(i, j int) bool {
			bi, _ := parseHexUint(logs[i].BlockNumber)
			bj, _ := parseHexUint(logs[j].BlockNumber)
			if bi != bj {
				return bi < bj
			}
			li, _ := parseHexUint(logs[i].LogIndex)
			lj, _ := parseHexUint(logs[j].LogIndex)
			return li < lj
		})
		for _, l := range logs {
			if l.Removed {
				continue
			}
			ev, err := r.decode(l)
			if err != nil {
				log.Warn().Err(err).Str("tx", l.TxHash).Msg("rpc: skipping undecodable log")
				continue
			}
			all = append(all, ev)
		}
	}
	return all, nil
}

func (r *rpcSource) decode(l rpcLog) (model.RawEvent, error) {
	if len(l.Topics) < 3 {
		return model.RawEvent{}, fmt.Errorf("expected 3 topics, got %d", len(l.Topics))
	}
	block, err := parseHexUint(l.BlockNumber)
	if err != nil {
		return model.RawEvent{}, err
	}
	idBytes, err := decodeHex(l.Topics[1])
	if err != nil {
		return model.RawEvent{}, err
	}
	ownerBytes, err := decodeHex(l.Topics[2])
	if err != nil || len(ownerBytes) != 32 {
		return model.RawEvent{}, fmt.Errorf("bad owner topic %q", l.Topics[2])
	}
	data, err := decodeHex(l.Data)
	if err != nil {
		return model.RawEvent{}, err
	}
	content, err := decodeMetadataContent(data)
	if err != nil {
		return model.RawEvent{}, err
	}
	return model.RawEvent{
		ID:       new(big.Int).SetBytes(idBytes).String(),
		Creator:  "0x" + hex.EncodeToString(ownerBytes[12:]),
		Locator:  content,
		Version:  r.cfg.Version,
		TxHash:   l.TxHash,
		Position: model.Position(block),
	}, nil
}

// decodeMetadataContent extracts metadata.content from the ABI-encoded
// non-indexed data (tuple(string,uint256), address).
func decodeMetadataContent(data []byte) (string, error) {
	tupleOff, err := abiWord(data, 0)
	if err != nil {
		return "", err
	}
	strRel, err := abiWord(data, tupleOff)
	if err != nil {
		return "", err
	}
	strOff := tupleOff + strRel
	n, err := abiWord(data, strOff)
	if err != nil {
		return "", err
	}
	start := strOff + 32
	if start+n > uint64(len(data)) || start+n < start {
		return "", errors.New("abi: string out of range")
	}
	return string(data[start : start+n]), nil
}

// abiWord reads the 32-byte word at off as a uint64.
func abiWord(data []byte, off uint64) (uint64, error) {
	if off+32 > uint64(len(data)) || off+32 < off {
		return 0, fmt.Errorf("abi: word at %d out of range", off)
	}
	w := data[off : off+32]
	for _, b := range w[:24] {
		if b != 0 {
			return 0, fmt.Errorf("abi: word at %d overflows uint64", off)
		}
	}
	return binary.BigEndian.Uint64(w[24:]), nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, errors.New("empty hex quantity")
	}
	return strconv.ParseUint(s, 16, 64)
}

func hexUint(n uint64) string { return "0x" + strconv.FormatUint(n, 16) }
