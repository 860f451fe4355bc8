package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/util"
)

// NameResolver returns a display name for a creator address.
type NameResolver interface {
	ResolveName(ctx context.Context, address string) string
}

// AddressNames displays the raw address.
type AddressNames struct{}

func (AddressNames) ResolveName(_ context.Context, address string) string { return address }

// ENS looks up the primary ENS name of an address through a resolver API,
// falling back to the address on any failure.
type ENS struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	cache   *lru.Cache[string, string]
}

func NewENS(cfg config.ENS) (*ENS, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("ens cache: %w", err)
	}
	to := cfg.Timeout
	if to == 0 {
		to = 5 * time.Second
	}
	return &ENS{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: to,
		client:  util.NewHTTPClient(to),
		cache:   cache,
	}, nil
}

// NewNameResolver returns ENS when enabled, otherwise raw addresses.
func NewNameResolver(cfg config.ENS) (NameResolver, error) {
	if !cfg.Enabled {
		return AddressNames{}, nil
	}
	return NewENS(cfg)
}

func (e *ENS) ResolveName(ctx context.Context, address string) string {
	key := strings.ToLower(address)
	if key == "" {
		return address
	}
	if name, ok := e.cache.Get(key); ok {
		return name
	}
	name, err := e.lookup(ctx, address)
	if err != nil {
		log.Debug().Err(err).Str("address", address).Msg("ens lookup failed")
		return address
	}
	if name == "" {
		name = address
	}
	e.cache.Add(key, name)
	return name
}

func (e *ENS) lookup(ctx context.Context, address string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/ens/resolve/"+address, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("ens %d", resp.StatusCode)
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Name), nil
}
