package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

type Logging struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type CommonHTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type Retry struct {
	MaxRetries int           `yaml:"max_retries"` // attempts (e.g. 3)
	Backoff    time.Duration `yaml:"backoff"`     // initial backoff (e.g. 500ms)
	MaxBackoff time.Duration `yaml:"max_backoff"` // cap (e.g. 5s)
}

type SubgraphConfig struct {
	URL      string     `yaml:"url"` // graph endpoint; JUICEBOX_SUBGRAPH overrides
	HTTP     CommonHTTP `yaml:"http"`
	Retry    Retry      `yaml:"retry"`
	PageSize int        `yaml:"page_size"` // default 100
	MaxPages int        `yaml:"max_pages"` // default 10
}

type RPCConfig struct {
	URL        string     `yaml:"url"` // JSON-RPC endpoint; ETH_RPC_URL overrides
	HTTP       CommonHTTP `yaml:"http"`
	Retry      Retry      `yaml:"retry"`
	Contract   string     `yaml:"contract"`    // emitting contract address
	Topic      string     `yaml:"topic"`       // topic0 of the creation event
	Version    string     `yaml:"version"`     // protocol version stamped on decoded events
	BlockRange uint64     `yaml:"block_range"` // max blocks per eth_getLogs call
}

type Source struct {
	Type     string         `yaml:"type"` // subgraph | rpc
	Subgraph SubgraphConfig `yaml:"subgraph"`
	RPC      RPCConfig      `yaml:"rpc"`
}

type Metadata struct {
	Gateway   string        `yaml:"gateway"` // e.g. https://ipfs.io/ipfs
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	CacheSize int           `yaml:"cache_size"`
}

type ENS struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"` // e.g. https://api.ensideas.com
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

type Render struct {
	BaseURL string `yaml:"base_url"` // canonical link prefix
	Noun    string `yaml:"noun"`     // used in fallback names
}

type Publish struct {
	Timeout time.Duration `yaml:"timeout"` // bound on one delivery attempt
}

type TwitterSink struct {
	BaseURL string `yaml:"base_url"` // https://api.twitter.com
}

type NATSSink struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type KafkaSink struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Sink struct {
	Type    string      `yaml:"type"` // twitter | nats | kafka | stdout
	Twitter TwitterSink `yaml:"twitter"`
	NATS    NATSSink    `yaml:"nats"`
	Kafka   KafkaSink   `yaml:"kafka"`
}

type Auth struct {
	ClientID     string        `yaml:"client_id"`     // TWITTER_CLIENT_ID overrides
	ClientSecret string        `yaml:"client_secret"` // TWITTER_CLIENT_SECRET overrides
	CallbackURL  string        `yaml:"callback_url"`
	AuthorizeURL string        `yaml:"authorize_url"`
	TokenURL     string        `yaml:"token_url"`
	RevokeURL    string        `yaml:"revoke_url"`
	Scopes       []string      `yaml:"scopes"`
	StateTTL     time.Duration `yaml:"state_ttl"` // lifetime of a pending login
	// Preauthorized skips the OAuth flow; used with sinks that need no token.
	Preauthorized bool `yaml:"preauthorized"`
}

type Cursor struct {
	Backend string `yaml:"backend"` // file | pebble | redis | memory
	Path    string `yaml:"path"`    // file path or pebble directory
	Name    string `yaml:"name"`    // cursor key name
	Redis   string `yaml:"redis"`   // redis URL; REDIS_URL overrides
}

type Pipeline struct {
	Interval           time.Duration `yaml:"interval"`
	AdvancePolicy      string        `yaml:"advance_policy"` // observe | success
	ResolveConcurrency int           `yaml:"resolve_concurrency"`
	DedupTTL           time.Duration `yaml:"dedup_ttl"`
	DedupMaxKeys       int           `yaml:"dedup_max_keys"`
}

type RegexRule struct {
	Field string `yaml:"field"` // name | description | creator
	Expr  string `yaml:"expr"`
}

type Filter struct {
	DenyCreators []string    `yaml:"deny_creators"`
	DenyKeywords []string    `yaml:"deny_keywords"` // case-insensitive substrings of the name
	DenyRegex    []RegexRule `yaml:"deny_regex"`
}

type Config struct {
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Source   Source   `yaml:"source"`
	Metadata Metadata `yaml:"metadata"`
	ENS      ENS      `yaml:"ens"`
	Render   Render   `yaml:"render"`
	Publish  Publish  `yaml:"publish"`
	Sink     Sink     `yaml:"sink"`
	Auth     Auth     `yaml:"auth"`
	Cursor   Cursor   `yaml:"cursor"`
	Pipeline Pipeline `yaml:"pipeline"`
	Filter   Filter   `yaml:"filter"`
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TWITTER_CLIENT_ID"); v != "" {
		c.Auth.ClientID = v
	}
	if v := os.Getenv("TWITTER_CLIENT_SECRET"); v != "" {
		c.Auth.ClientSecret = v
	}
	if v := os.Getenv("JUICEBOX_SUBGRAPH"); v != "" {
		c.Source.Subgraph.URL = v
	}
	if v := os.Getenv("ETH_RPC_URL"); v != "" {
		c.Source.RPC.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cursor.Redis = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":3000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Source.Type == "" {
		c.Source.Type = "subgraph"
	}
	sg := &c.Source.Subgraph
	if sg.HTTP.Timeout == 0 {
		sg.HTTP.Timeout = 15 * time.Second
	}
	if sg.PageSize == 0 {
		sg.PageSize = 100
	}
	if sg.MaxPages == 0 {
		sg.MaxPages = 10
	}
	defaultRetry(&sg.Retry)
	rpc := &c.Source.RPC
	if rpc.HTTP.Timeout == 0 {
		rpc.HTTP.Timeout = 15 * time.Second
	}
	if rpc.BlockRange == 0 {
		rpc.BlockRange = 2000
	}
	if rpc.Version == "" {
		rpc.Version = "2"
	}
	defaultRetry(&rpc.Retry)

	if c.Metadata.Gateway == "" {
		c.Metadata.Gateway = "https://ipfs.io/ipfs"
	}
	if c.Metadata.Timeout == 0 {
		c.Metadata.Timeout = 10 * time.Second
	}
	if c.Metadata.CacheSize == 0 {
		c.Metadata.CacheSize = 1024
	}
	if c.ENS.BaseURL == "" {
		c.ENS.BaseURL = "https://api.ensideas.com"
	}
	if c.ENS.Timeout == 0 {
		c.ENS.Timeout = 5 * time.Second
	}
	if c.ENS.CacheSize == 0 {
		c.ENS.CacheSize = 1024
	}

	if c.Render.BaseURL == "" {
		c.Render.BaseURL = "https://juicebox.money"
	}
	if c.Render.Noun == "" {
		c.Render.Noun = "project"
	}
	if c.Publish.Timeout == 0 {
		c.Publish.Timeout = 15 * time.Second
	}

	if c.Sink.Type == "" {
		c.Sink.Type = "twitter"
	}
	if c.Sink.Twitter.BaseURL == "" {
		c.Sink.Twitter.BaseURL = "https://api.twitter.com"
	}
	if c.Sink.NATS.Subject == "" {
		c.Sink.NATS.Subject = "juicebox.announcements"
	}
	if c.Sink.Kafka.Topic == "" {
		c.Sink.Kafka.Topic = "juicebox-announcements"
	}

	if c.Auth.CallbackURL == "" {
		c.Auth.CallbackURL = "http://127.0.0.1:3000/callback"
	}
	if c.Auth.AuthorizeURL == "" {
		c.Auth.AuthorizeURL = "https://twitter.com/i/oauth2/authorize"
	}
	if c.Auth.TokenURL == "" {
		c.Auth.TokenURL = "https://api.twitter.com/2/oauth2/token"
	}
	if c.Auth.RevokeURL == "" {
		c.Auth.RevokeURL = "https://api.twitter.com/2/oauth2/revoke"
	}
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = []string{"tweet.write", "tweet.read", "users.read"}
	}
	if c.Auth.StateTTL == 0 {
		c.Auth.StateTTL = 10 * time.Minute
	}

	if c.Cursor.Backend == "" {
		c.Cursor.Backend = "file"
	}
	if c.Cursor.Path == "" {
		c.Cursor.Path = "timestamp.txt"
	}
	if c.Cursor.Name == "" {
		c.Cursor.Name = "juicebox"
	}

	if c.Pipeline.Interval == 0 {
		c.Pipeline.Interval = 3 * time.Minute
	}
	if c.Pipeline.AdvancePolicy == "" {
		c.Pipeline.AdvancePolicy = "observe"
	}
	if c.Pipeline.ResolveConcurrency == 0 {
		c.Pipeline.ResolveConcurrency = 4
	}
	if c.Pipeline.DedupTTL == 0 {
		c.Pipeline.DedupTTL = 24 * time.Hour
	}
	if c.Pipeline.DedupMaxKeys == 0 {
		c.Pipeline.DedupMaxKeys = 10000
	}
}

func defaultRetry(r *Retry) {
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.Backoff == 0 {
		r.Backoff = 500 * time.Millisecond
	}
	if r.MaxBackoff == 0 {
		r.MaxBackoff = 5 * time.Second
	}
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Type {
	case "subgraph":
		if strings.TrimSpace(c.Source.Subgraph.URL) == "" {
			errs = append(errs, errors.New("source.subgraph.url is required"))
		}
	case "rpc":
		if strings.TrimSpace(c.Source.RPC.URL) == "" {
			errs = append(errs, errors.New("source.rpc.url is required"))
		}
		if c.Source.RPC.Contract == "" || c.Source.RPC.Topic == "" {
			errs = append(errs, errors.New("source.rpc.contract and source.rpc.topic are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source type: %s", c.Source.Type))
	}

	switch c.Sink.Type {
	case "twitter":
		if c.Auth.ClientID == "" {
			errs = append(errs, errors.New("auth.client_id is required for the twitter sink"))
		}
	case "nats":
		if c.Sink.NATS.URL == "" {
			errs = append(errs, errors.New("sink.nats.url is required"))
		}
	case "kafka":
		if len(c.Sink.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("sink.kafka.brokers is required"))
		}
	case "stdout":
	default:
		errs = append(errs, fmt.Errorf("unknown sink type: %s", c.Sink.Type))
	}

	switch c.Cursor.Backend {
	case "file", "pebble", "memory":
	case "redis":
		if c.Cursor.Redis == "" {
			errs = append(errs, errors.New("cursor.redis is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cursor backend: %s", c.Cursor.Backend))
	}

	switch c.Pipeline.AdvancePolicy {
	case "observe", "success":
	default:
		errs = append(errs, fmt.Errorf("unknown advance policy: %s", c.Pipeline.AdvancePolicy))
	}
	if c.Pipeline.Interval < time.Second {
		errs = append(errs, errors.New("pipeline.interval must be at least 1s"))
	}
	return errors.Join(errs...)
}
