// Package metadata enriches raw events with off-chain project data.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
	"github.com/filipviz/juicebox-tweeter/internal/util"
)

const maxMetadataBytes = 1 << 20

// Resolver turns a metadata locator into project metadata.
//
// The returned Metadata is always usable. A non-nil error only explains why
// it is empty; callers treat it as a soft failure.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (model.Metadata, error)
}

// UnavailableError reports a metadata lookup that fell back to empty metadata.
type UnavailableError struct {
	Locator string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("metadata %s unavailable: %v", e.Locator, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IPFS fetches metadata JSON through an HTTP gateway. Successful lookups are
// cached; content addressed documents never change.
type IPFS struct {
	gateway   string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	cache     *lru.Cache[string, model.Metadata]
}

func NewIPFS(cfg config.Metadata) (*IPFS, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, model.Metadata](size)
	if err != nil {
		return nil, fmt.Errorf("metadata cache: %w", err)
	}
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	return &IPFS{
		gateway:   strings.TrimRight(cfg.Gateway, "/"),
		userAgent: cfg.UserAgent,
		timeout:   to,
		client:    util.NewHTTPClient(to),
		cache:     cache,
	}, nil
}

func (r *IPFS) Resolve(ctx context.Context, locator string) (model.Metadata, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return model.Metadata{}, nil
	}
	if md, ok := r.cache.Get(locator); ok {
		return md, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	md, err := r.fetch(ctx, r.url(locator))
	if err != nil {
		return model.Metadata{}, &UnavailableError{Locator: locator, Err: err}
	}
	r.cache.Add(locator, md)
	return md, nil
}

// url maps a bare CID, ipfs:// URI or http(s) URL to a fetchable URL.
func (r *IPFS) url(locator string) string {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return locator
	case strings.HasPrefix(locator, "ipfs://"):
		cid := strings.TrimPrefix(locator, "ipfs://")
		cid = strings.TrimPrefix(cid, "ipfs/")
		return r.gateway + "/" + cid
	default:
		return r.gateway + "/" + strings.TrimPrefix(locator, "/")
	}
}

func (r *IPFS) fetch(ctx context.Context, url string) (model.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Metadata{}, err
	}
	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return model.Metadata{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Metadata{}, fmt.Errorf("gateway %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return model.Metadata{}, err
	}
	return parse(body)
}

// parse is lenient about field types: third-party metadata is not validated,
// so anything that is not a string is ignored.
func parse(body []byte) (model.Metadata, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return model.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if m == nil {
		return model.Metadata{}, errors.New("decode metadata: not an object")
	}
	return model.Metadata{
		Name:        pickStr(m, "name"),
		Description: pickStr(m, "description"),
		Twitter:     strings.TrimPrefix(pickStr(m, "twitter"), "@"),
		InfoURI:     pickStr(m, "infoUri", "infoURI"),
		LogoURI:     pickStr(m, "logoUri", "logoURI"),
	}, nil
}

// pickStr returns the first non-empty string value among keys.
func pickStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				if s2 := strings.TrimSpace(s); s2 != "" {
					return s2
				}
			}
		}
	}
	return ""
}
