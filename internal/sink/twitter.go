package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
	"github.com/filipviz/juicebox-tweeter/internal/util"
)

// TwitterSink posts through the X API v2 create-tweet endpoint. Requests
// are authorized by an oauth2.Transport over the granted token source.
type TwitterSink struct {
	base   string
	client *http.Client
}

func NewTwitter(cfg config.TwitterSink, tokens oauth2.TokenSource) *TwitterSink {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.twitter.com"
	}
	client := util.NewHTTPClient(30 * time.Second)
	client.Transport = &oauth2.Transport{Source: tokens, Base: client.Transport}
	// Attempts run under the gate timeout.
	return &TwitterSink{base: base, client: client}
}

func (t *TwitterSink) Name() string { return "twitter" }

func (t *TwitterSink) Deliver(ctx context.Context, a model.Announcement) (model.Receipt, error) {
	body, err := json.Marshal(map[string]string{"text": a.Text})
	if err != nil {
		return model.Receipt{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return model.Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("twitter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return model.Receipt{}, fmt.Errorf("twitter %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return model.Receipt{}, fmt.Errorf("twitter: decode response: %w", err)
	}
	return model.Receipt{ID: out.Data.ID, Sink: t.Name(), At: time.Now().UTC()}, nil
}

func (t *TwitterSink) Close() error { return nil }
