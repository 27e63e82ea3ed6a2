package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/phrazzld/audiopaper-api/internal/client"
	"github.com/phrazzld/audiopaper-api/internal/client/sqlitestore"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	serverURL  string
	stateFile  string
	verbose    bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *client.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*client.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := client.LoadConfig(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.serverURL != "" {
			cfg.ServerURL = strings.TrimRight(c.flags.serverURL, "/")
		}
		if c.flags.stateFile != "" {
			if cfg.StateFile, err = client.ExpandPath(c.flags.stateFile); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.flags.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (c *commandContext) apiClient() (*client.APIClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return client.NewAPIClient(cfg.ServerURL, cfg.Timeout)
}

// session bundles what the tracking commands need: the API client, the
// locked state file and a registry that prints outcomes.
type session struct {
	api      *client.APIClient
	store    *sqlitestore.Store
	registry *client.PollerRegistry
	launcher *client.Launcher

	mu       sync.Mutex
	failures int
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(*session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	store, err := sqlitestore.Open(cmd.Context(), cfg.StateFile)
	if errors.Is(err, sqlitestore.ErrLocked) {
		return fmt.Errorf("%w; is `paperctl resume` running elsewhere?", err)
	}
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()
	s := &session{api: api, store: store}
	s.registry = client.NewPollerRegistry(client.RegistryConfig{
		Fetcher:  api,
		Handles:  store,
		Interval: cfg.Poll,
		Notify: func(o client.Outcome) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if o.State != client.PollResolved {
				s.failures++
			}
			printOutcome(out, o)
		},
		Logger: c.logger(cmd.ErrOrStderr()),
	})
	defer s.registry.CancelAll()
	s.launcher = client.NewLauncher(api, store, s.registry)

	return fn(s)
}

// wait blocks until every watched task settles. Interrupting leaves the
// handles in place for a later resume.
func (s *session) wait(cmd *cobra.Command) error {
	if err := s.registry.Wait(cmd.Context()); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "interrupted; run `paperctl resume` to keep following pending tasks")
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		return fmt.Errorf("%d task(s) did not complete", s.failures)
	}
	return nil
}
