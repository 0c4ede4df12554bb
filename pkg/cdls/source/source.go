// Package source contains all of the supported data sources for the CDLS.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dbazile/cdls/pkg/cdls/config"
)

// Record : a single extracted data record, keyed by field name.
type Record map[string]any

// Store is where sources warehouse their records.
type Store interface {
	Warehouse(data any, source string, recordDate time.Time) error
}

// Watermark exposes the latest record date previously loaded for a source,
// used by incremental extractions.
type Watermark interface {
	LatestRecordDate(identifier string) (time.Time, error)
}

// Source : a registered data source that can execute a load.
type Source interface {
	// Identifier returns the unique name for this source.
	Identifier() string

	// Type returns a friendly name for the source implementation.
	Type() string

	// Description returns the user-configured description.
	Description() string

	// Execute runs the load. A report is always returned, even on failure.
	Execute(ctx context.Context) (*Report, error)
}

// Deps carries the shared services injected into every source.
type Deps struct {
	Store     Store
	Watermark Watermark
	FS        afero.Fs
	Log       zerolog.Logger
}

// Factory builds a source from its configuration node.
type Factory func(node config.Node, deps Deps) (Source, error)

var factories = map[string]Factory{
	"localfile": NewLocalFile,
	"s3":        NewS3,
	"mysql":     NewMySQL,
}

// New constructs the source named by the node's type field.
func New(node config.Node, deps Deps) (Source, error) {
	factory, ok := factories[node.Type]
	if !ok {
		return nil, &config.SourceConfigurationError{
			Message: fmt.Sprintf("Unknown source type '%s'", node.Type),
			Node:    &node,
		}
	}
	return factory(node, deps)
}

// base provides the common services every source builds on: identity,
// metrics keeping, and warehousing.
type base struct {
	identifier  string
	description string
	store       Store
	log         zerolog.Logger
	report      *Report
	started     time.Time
}

func newBase(node config.Node, deps Deps) (base, error) {
	if err := config.RequireParam(node, "id", node.ID); err != nil {
		return base{}, err
	}
	if err := config.RequireParam(node, "description", node.Description); err != nil {
		return base{}, err
	}
	return base{
		identifier:  node.ID,
		description: node.Description,
		store:       deps.Store,
		log:         deps.Log.With().Str("source", node.ID).Logger(),
	}, nil
}

func (b *base) Identifier() string {
	return b.identifier
}

func (b *base) Description() string {
	return b.description
}

// startTimer begins a fresh report for this load attempt.
func (b *base) startTimer() {
	b.started = time.Now()
	b.report = &Report{Identifier: b.identifier, LatestRecord: time.Time{}}
}

// finalize completes the load metrics and returns them.
func (b *base) finalize(successful bool) *Report {
	b.report.TimeElapsed = time.Since(b.started)
	b.report.Successful = successful
	return b.report
}

func (b *base) save(data any, recordDate time.Time) error {
	return b.store.Warehouse(data, b.identifier, recordDate)
}

func (b *base) markProcessed() {
	b.report.NumberProcessed++
}

func (b *base) markSuccess() {
	b.report.NumberSuccesses++
}

// observe updates the latest record metric with whatever the latest date is.
func (b *base) observe(recordDate time.Time) {
	if recordDate.After(b.report.LatestRecord) {
		b.report.LatestRecord = recordDate
	}
}

// ExtractError : a failure to set up or perform an extraction.
type ExtractError struct {
	Message string
	Err     error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
