package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/cirocosta/docker-hub-exporter/pkg/collector"
	"github.com/cirocosta/docker-hub-exporter/pkg/config"
	"github.com/cirocosta/docker-hub-exporter/pkg/exporter"
	"github.com/cirocosta/docker-hub-exporter/pkg/hub"
	"github.com/cirocosta/docker-hub-exporter/pkg/logging"
	"github.com/cirocosta/docker-hub-exporter/pkg/target"
)

// settings are exposed both as environment variables and as flags (e.g.,
// BIND_PORT and --bind-port), flags taking precedence when set.
//
var settings = []struct {
	key   string
	usage string
}{
	{config.KeyBindPort, "port to bind the prometheus server to (required)"},
	{config.KeyTelemetryPath, "endpoint at which prometheus metrics are served"},
	{config.KeyImages, "comma-separated images to monitor (user/image1,user/image2)"},
	{config.KeyOrgs, "comma-separated organizations to monitor (org1,org2)"},
	{config.KeyConfigFile, "yaml file listing additional images and orgs, " +
		"reloaded on change"},
	{config.KeyRequestTimeout, "timeout of each request to docker hub"},
	{config.KeyCollectTimeout, "timeout of a whole collection"},
	{config.KeyConcurrency, "number of targets fetched concurrently"},
	{config.KeyMaxPages, "maximum number of pages followed for an organization"},
	{config.KeyBaseURL, "base url of the docker hub repositories api"},
	{config.KeyLogLevel, "log level (debug, info, warn, error)"},
	{config.KeyLogFormat, "log format (console, json)"},
}

func flagName(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "_", "-")
}

type command struct{}

func (c *command) Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "docker-hub-exporter",
		Short:        "Prometheus exporter for docker hub repository metrics",
		RunE:         c.RunE,
		SilenceUsage: true,
	}

	for _, s := range settings {
		cmd.PersistentFlags().String(flagName(s.key), "",
			fmt.Sprintf("%s [$%s]", s.usage, s.key))
	}
	_ = cmd.MarkPersistentFlagFilename(flagName(config.KeyConfigFile), "yaml", "yml")

	return cmd
}

func (c *command) RunE(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env, err := newEnvironment(cmd)
	if err != nil {
		return err
	}

	addr, err := env.cfg.ListenAddress()
	if err != nil {
		return fmt.Errorf("listen address: %w", err)
	}

	hubCollector, err := collector.New(env.client, env.targets,
		collector.WithConcurrency(env.cfg.Concurrency),
		collector.WithCollectTimeout(env.cfg.CollectTimeout),
		collector.WithLogger(env.log.WithName("collector")),
	)
	if err != nil {
		return fmt.Errorf("new collector: %w", err)
	}

	prometheusExporter, err := exporter.New(
		exporter.WithBindAddress(addr),
		exporter.WithTelemetryPath(env.cfg.TelemetryPath),
		exporter.WithLogger(env.log.WithName("exporter")),
	)
	if err != nil {
		return fmt.Errorf("new exporter: %w", err)
	}
	defer prometheusExporter.Close()

	err = prometheusExporter.Register(hubCollector, logging.Collector())
	if err != nil {
		return fmt.Errorf("exporter register: %w", err)
	}

	if env.cfg.ConfigFile != "" {
		go watchTargets(ctx, env, hubCollector)
	}

	err = prometheusExporter.Run(ctx)
	if err != nil {
		return fmt.Errorf("prometheus exporter run: %w", err)
	}

	return nil
}

func watchTargets(ctx context.Context, env *environment, c *collector.Collector) {
	log := env.log.WithName("config")

	err := env.cfg.Watch(ctx, log, func(set target.Set) {
		if err := c.SetTargets(set); err != nil {
			log.Error(err, "set targets")
		}
	})
	if err != nil {
		log.Error(err, "watch")
	}
}

// environment is what both serving and one-off collections need: the
// configuration, a logger, a registry client and the resolved targets.
//
type environment struct {
	cfg     *config.Config
	log     logr.Logger
	client  *hub.Client
	targets target.Set
}

func newEnvironment(cmd *cobra.Command) (*environment, error) {
	envLookup := config.Environment()

	cfg, err := config.Load(func(key string) (string, bool) {
		if f := cmd.Flag(flagName(key)); f != nil && f.Changed {
			return f.Value.String(), true
		}

		return envLookup(key)
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("new logger: %w", err)
	}

	targets, err := cfg.Targets()
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}

	log.Info("monitoring",
		"repositories", targets.Repositories,
		"organizations", targets.Organizations)

	client, err := hub.NewClient(cfg.BaseURL,
		hub.WithTimeout(cfg.RequestTimeout),
		hub.WithMaxPages(cfg.MaxPages),
		hub.WithUserAgent(userAgent()),
		hub.WithLogger(log.WithName("hub")),
	)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	return &environment{
		cfg:     cfg,
		log:     log,
		client:  client,
		targets: targets,
	}, nil
}
