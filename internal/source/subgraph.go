package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
	"github.com/filipviz/juicebox-tweeter/internal/util"
)

const projectCreateQuery = `query ProjectCreateEvents($ts: Int!, $first: Int!, $skip: Int!) {
  projectCreateEvents(
    where: { timestamp_gte: $ts }
    orderBy: timestamp
    orderDirection: asc
    first: $first
    skip: $skip
  ) {
    id
    projectId
    pv
    timestamp
    from
    txHash
    project { handle metadataUri }
  }
}`

type subgraphSource struct {
	cfg    config.SubgraphConfig
	client *http.Client
	now    func() time.Time
}

func NewSubgraph(cfg config.SubgraphConfig) *subgraphSource {
	to := cfg.HTTP.Timeout
	if to == 0 {
		to = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &subgraphSource{cfg: cfg, client: util.NewHTTPClient(to), now: time.Now}
}

func (s *subgraphSource) Name() string { return "subgraph" }

// Head is the current wall clock: subgraph positions are block timestamps.
func (s *subgraphSource) Head(context.Context) (model.Position, error) {
	return model.Position(s.now().Unix()), nil
}

type gqlEvent struct {
	ID        string      `json:"id"`
	ProjectID json.Number `json:"projectId"`
	PV        string      `json:"pv"`
	Timestamp json.Number `json:"timestamp"`
	From      string      `json:"from"`
	TxHash    string      `json:"txHash"`
	Project   *struct {
		Handle      string `json:"handle"`
		MetadataURI string `json:"metadataUri"`
	} `json:"project"`
}

type gqlResponse struct {
	Data struct {
		Events []gqlEvent `json:"projectCreateEvents"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (s *subgraphSource) FetchSince(ctx context.Context, pos model.Position) ([]model.RawEvent, error) {
	endpoint := strings.TrimSpace(s.cfg.URL)
	if endpoint == "" {
		return nil, unavailable(s.Name(), errors.New("no subgraph url configured"))
	}

	var all []model.RawEvent
	for page := 0; page < s.cfg.MaxPages; page++ {
		rows, err := s.fetchPage(ctx, endpoint, pos, page*s.cfg.PageSize)
		if err != nil {
			return nil, unavailable(s.Name(), err)
		}
		for _, r := range rows {
			ev, err := r.toEvent()
			if err != nil {
				log.Warn().Err(err).Str("id", r.ID).Msg("subgraph: skipping malformed event")
				continue
			}
			all = append(all, ev)
		}
		if len(rows) < s.cfg.PageSize {
			sortByPosition(all)
			return all, nil
		}
	}
	log.Warn().Int("pages", s.cfg.MaxPages).Msg("subgraph: page limit reached, remaining events deferred to next cycle")
	sortByPosition(all)
	return all, nil
}

func (s *subgraphSource) fetchPage(ctx context.Context, endpoint string, pos model.Position, skip int) ([]gqlEvent, error) {
	raw, err := json.Marshal(map[string]any{
		"query": projectCreateQuery,
		"variables": map[string]any{
			"ts":    uint64(pos),
			"first": s.cfg.PageSize,
			"skip":  skip,
		},
	})
	if err != nil {
		return nil, err
	}
	// Fresh request for every retry attempt to avoid drained Body issues.
	mkReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if ua := s.cfg.HTTP.UserAgent; ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		return req, nil
	}

	var out gqlResponse
	err = util.RetryWith(ctx, s.cfg.Retry, func() error {
		req, err := mkReq()
		if err != nil {
			return util.Permanent(err)
		}
		r, err := s.client.Do(req)
		if err != nil {
			return err
		}
		if err := checkStatus("subgraph", r); err != nil {
			return err
		}
		body, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return err
		}
		out = gqlResponse{}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("subgraph: decode response: %w", err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("subgraph: %s", out.Errors[0].Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Int("rows", len(out.Data.Events)).Int("skip", skip).Uint64("since", uint64(pos)).Msg("subgraph: page fetched")
	return out.Data.Events, nil
}

func (g gqlEvent) toEvent() (model.RawEvent, error) {
	ts, err := g.Timestamp.Int64()
	if err != nil || ts < 0 {
		return model.RawEvent{}, fmt.Errorf("bad timestamp %q", g.Timestamp)
	}
	id := g.ProjectID.String()
	if id == "" {
		return model.RawEvent{}, errors.New("missing projectId")
	}
	ev := model.RawEvent{
		ID:       id,
		Creator:  g.From,
		Version:  strings.TrimSpace(g.PV),
		TxHash:   g.TxHash,
		Position: model.Position(ts),
	}
	if ev.Version == "" {
		ev.Version = "1"
	}
	if g.Project != nil {
		ev.Handle = g.Project.Handle
		ev.Locator = g.Project.MetadataURI
	}
	return ev, nil
}
