package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/filipviz/juicebox-tweeter/internal/auth"
	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/gate"
	"github.com/filipviz/juicebox-tweeter/internal/logging"
	"github.com/filipviz/juicebox-tweeter/internal/metadata"
	"github.com/filipviz/juicebox-tweeter/internal/metrics"
	"github.com/filipviz/juicebox-tweeter/internal/pipeline"
	"github.com/filipviz/juicebox-tweeter/internal/postprocess"
	"github.com/filipviz/juicebox-tweeter/internal/render"
	"github.com/filipviz/juicebox-tweeter/internal/server"
	"github.com/filipviz/juicebox-tweeter/internal/sink"
	"github.com/filipviz/juicebox-tweeter/internal/source"
	"github.com/filipviz/juicebox-tweeter/internal/store"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

var (
	cfgPath  string
	interval time.Duration
	once     bool
	verbose  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "juicebox-tweeter",
		Short:         "Announce new Juicebox projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (defaults only when empty)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	root.Flags().DurationVar(&interval, "interval", 0, "poll interval (overrides pipeline.interval)")
	root.Flags().BoolVar(&once, "once", false, "run a single cycle then exit")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "cursor",
		Short: "Print the stored cursor position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cur, err := store.Open(cfg.Cursor)
			if err != nil {
				return err
			}
			defer cur.Close()
			pos, ok, err := cur.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no cursor stored\n", cur.Name())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", cur.Name(), pos)
			return nil
		},
	})
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "load config: %v\n", err)
		return nil, err
	}
	if cmd.Flags().Changed("interval") {
		cfg.Pipeline.Interval = interval
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "invalid flags: %v\n", err)
			return nil, err
		}
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format, verbose)
	return cfg, nil
}

func run(cfg *config.Config) error {
	log.Info().Str("version", Version).Msg("juicebox-tweeter starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cur, err := store.Open(cfg.Cursor)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.Cursor.Backend).Msg("open cursor")
		return err
	}
	defer cur.Close()

	src, err := source.NewFromConfig(cfg.Source)
	if err != nil {
		log.Error().Err(err).Msg("build source")
		return err
	}
	resolver, err := metadata.NewIPFS(cfg.Metadata)
	if err != nil {
		return err
	}
	names, err := metadata.NewNameResolver(cfg.ENS)
	if err != nil {
		return err
	}
	filter, err := postprocess.New(cfg.Filter)
	if err != nil {
		log.Error().Err(err).Msg("build filter")
		return err
	}

	// Sinks other than twitter carry their own credentials.
	var routes []server.Routes
	state := auth.NewState()
	if cfg.Auth.Preauthorized || cfg.Sink.Type != "twitter" {
		state = auth.NewPreauthorized()
	} else {
		routes = append(routes, auth.NewFlow(cfg.Auth, state))
	}

	sk, err := sink.NewFromConfig(cfg.Sink, state)
	if err != nil {
		log.Error().Err(err).Str("sink", cfg.Sink.Type).Msg("build sink")
		return err
	}
	defer sk.Close()

	m := metrics.New()
	srv := server.New(cfg.Server, m, state, routes...)
	go func() {
		log.Info().Str("addr", srv.Addr()).Msg("http server listening")
		if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()
	if !state.IsAuthorized() {
		log.Warn().Str("login", cfg.Auth.CallbackURL).Msg("not authorized; visit /login on this server to grant access")
	}

	sched := pipeline.New(pipeline.Deps{
		Auth:     state,
		Source:   src,
		Metadata: resolver,
		Names:    names,
		Renderer: render.New(cfg.Render),
		Filter:   filter,
		Gate:     gate.New(state, sk, cfg.Publish.Timeout),
		Cursor:   cur,
		Dedup:    store.NewDedup(cfg.Pipeline.DedupMaxKeys, cfg.Pipeline.DedupTTL),
		Metrics:  m,
	}, pipeline.Options{
		Interval:           cfg.Pipeline.Interval,
		AdvancePolicy:      cfg.Pipeline.AdvancePolicy,
		ResolveConcurrency: cfg.Pipeline.ResolveConcurrency,
	})

	if once {
		res := sched.RunCycle(ctx)
		err = res.Err
	} else {
		err = sched.Run(ctx)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("http server shutdown")
	}
	log.Info().Msg("juicebox-tweeter stopped")
	return err
}
