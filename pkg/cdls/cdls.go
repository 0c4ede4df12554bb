// Package cdls wires the Cloudy Data Load Subsystem together: it registers
// every configured source and orchestrates load operations against the
// local warehouse.
package cdls

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/dbazile/cdls/pkg/cdls/config"
	"github.com/dbazile/cdls/pkg/cdls/connection"
	"github.com/dbazile/cdls/pkg/cdls/source"
	"github.com/dbazile/cdls/pkg/cdls/state"
	"github.com/dbazile/cdls/pkg/cdls/warehouse"
)

// Options controls initialization.
type Options struct {
	ConfigPath string
	DBPath     string
	Log        zerolog.Logger
}

// CDLS : the fully initialized subsystem, ready to accept load requests.
type CDLS struct {
	cfg     *config.Config
	log     zerolog.Logger
	db      *gorm.DB
	stats   state.Manager
	sources map[string]source.Source
}

// SourceInfo : one row of the registered sources listing.
type SourceInfo struct {
	Identifier  string
	Type        string
	Description string
}

// Initialize brings the whole CDLS up: logger, warehouse connection, source
// configuration, and source registration.
func Initialize(opts Options) (*CDLS, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultSourceConfigPath
	}
	if opts.DBPath == "" {
		opts.DBPath = config.DefaultDBPath
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	db, err := connection.DialSqlite(opts.DBPath)
	if err != nil {
		return nil, &warehouse.DatabaseError{Message: err.Error(), Err: err}
	}

	stats := state.NewGormManager(db)
	deps := source.Deps{
		Store:     warehouse.New(db),
		Watermark: stats,
		FS:        afero.NewOsFs(),
		Log:       opts.Log,
	}

	sources := make(map[string]source.Source, len(cfg.Registered))
	for _, node := range cfg.Registered {
		src, err := source.New(node, deps)
		if err != nil {
			return nil, err
		}
		if _, exists := sources[src.Identifier()]; exists {
			return nil, &config.SourceConfigurationError{
				Message: fmt.Sprintf("Duplicate source identifier '%s'", src.Identifier()),
				Node:    &node,
			}
		}
		sources[src.Identifier()] = src
	}

	return &CDLS{
		cfg:     cfg,
		log:     opts.Log,
		db:      db,
		stats:   stats,
		sources: sources,
	}, nil
}

// InstallSchema drops and recreates the warehouse and load stats tables.
func (c *CDLS) InstallSchema() error {
	if err := warehouse.Install(c.db); err != nil {
		return err
	}
	return state.Install(c.db)
}

// ListRegisteredSources returns every registered source sorted by
// identifier.
func (c *CDLS) ListRegisteredSources() []SourceInfo {
	infos := make([]SourceInfo, 0, len(c.sources))
	for _, src := range c.sources {
		infos = append(infos, SourceInfo{
			Identifier:  src.Identifier(),
			Type:        src.Type(),
			Description: src.Description(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Identifier < infos[j].Identifier
	})
	return infos
}

// PerformLoad executes a load on a single source.
func (c *CDLS) PerformLoad(ctx context.Context, identifier string) (*source.Report, error) {
	src, ok := c.sources[strings.TrimSpace(identifier)]
	if !ok {
		return nil, &UnregisteredSourceError{Identifier: identifier}
	}

	c.log.Info().Msgf("Attempting load for '%s'", src.Identifier())
	report, err := c.execute(ctx, src)
	if err != nil {
		c.log.Error().Err(err).Msgf("Load failed for '%s'", src.Identifier())
		return report, err
	}
	c.log.Info().Msg(report.String())
	return report, nil
}

// PerformAllLoads executes a load on every registered source through a
// worker pool bounded by the configured max concurrency. When haltOnError
// is false, one source failing does not stop the others.
func (c *CDLS) PerformAllLoads(ctx context.Context, haltOnError bool) ([]*source.Report, error) {
	c.log.Info().Msg("Loading all sources")

	var (
		mu       sync.Mutex
		reports  []*source.Report
		finalErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)

	for _, info := range c.ListRegisteredSources() {
		src := c.sources[info.Identifier]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}

			report, err := c.execute(gctx, src)

			mu.Lock()
			defer mu.Unlock()
			if report != nil {
				reports = append(reports, report)
			}
			if err != nil {
				finalErr = multierror.Append(finalErr, fmt.Errorf("%s: %w", src.Identifier(), err))
				if haltOnError {
					return err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	c.log.Info().Msg("Loads complete")
	for _, report := range reports {
		c.log.Info().Msg(report.String())
	}
	return reports, finalErr
}

// execute runs one source and records the attempt in the load stats.
func (c *CDLS) execute(ctx context.Context, src source.Source) (*source.Report, error) {
	report, err := src.Execute(ctx)

	if report != nil && c.stats != nil {
		remarks := ""
		if err != nil {
			remarks = err.Error()
		}
		if statErr := c.stats.RecordLoad(report, remarks); statErr != nil {
			c.log.Error().Err(statErr).Msgf("Could not record load stats for '%s'", src.Identifier())
		}
	}
	return report, err
}

// UnregisteredSourceError : an attempt to act on a source identifier that
// was never registered.
type UnregisteredSourceError struct {
	Identifier string
}

func (e *UnregisteredSourceError) Error() string {
	return fmt.Sprintf("Source %s is not registered", e.Identifier)
}
