package source

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dbazile/cdls/pkg/cdls/config"
	"github.com/dbazile/cdls/pkg/cdls/config/sourcecfg"
	"github.com/dbazile/cdls/pkg/cdls/logging"
)

// LocalFile scans a directory on the local filesystem for supported data
// files, moving each one to an archive folder once every contained record
// has been warehoused.
type LocalFile struct {
	base
	fs      afero.Fs
	queue   string
	archive string
}

// NewLocalFile builds a localfile source from its configuration node.
func NewLocalFile(node config.Node, deps Deps) (Source, error) {
	b, err := newBase(node, deps)
	if err != nil {
		return nil, err
	}

	var opts sourcecfg.LocalFile
	if len(node.Options) > 0 {
		if err := json.Unmarshal(node.Options, &opts); err != nil {
			return nil, &config.SourceConfigurationError{
				Message: fmt.Sprintf("could not decode localfile options: %s", err),
				Node:    &node,
			}
		}
	}
	if err := config.RequireParam(node, "queue_path", opts.QueuePath); err != nil {
		return nil, err
	}
	if err := config.RequireParam(node, "archive_path", opts.ArchivePath); err != nil {
		return nil, err
	}

	return &LocalFile{
		base:    b,
		fs:      deps.FS,
		queue:   opts.QueuePath,
		archive: opts.ArchivePath,
	}, nil
}

func (s *LocalFile) Type() string {
	return "LocalFileSource"
}

// Execute drains the queue directory.
func (s *LocalFile) Execute(ctx context.Context) (*Report, error) {
	s.startTimer()

	entries, err := afero.ReadDir(s.fs, s.queue)
	if err != nil {
		return s.finalize(false), &ExtractError{Message: fmt.Sprintf("could not scan queue '%s'", s.queue), Err: err}
	}

	if err := s.fs.MkdirAll(s.archive, 0o755); err != nil {
		return s.finalize(false), &ExtractError{Message: fmt.Sprintf("could not create archive '%s'", s.archive), Err: err}
	}

	leftBehind := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return s.finalize(false), err
		}
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			continue
		}

		clean, err := s.loadFile(filepath.Join(s.queue, entry.Name()))
		if err != nil {
			return s.finalize(false), err
		}
		if !clean {
			leftBehind++
			continue
		}

		if err := s.fs.Rename(filepath.Join(s.queue, entry.Name()), filepath.Join(s.archive, entry.Name())); err != nil {
			return s.finalize(false), &ExtractError{Message: fmt.Sprintf("could not archive '%s'", entry.Name()), Err: err}
		}
		s.log.Debug().Msgf("Archived '%s'", entry.Name())
	}

	if leftBehind > 0 {
		logging.Banner(s.log, zerolog.WarnLevel,
			fmt.Sprintf("%d file(s) in '%s' contained records that could not be loaded and were left in the queue for review.", leftBehind, s.queue))
	}

	return s.finalize(true), nil
}

// loadFile warehouses every record in one data file. It reports whether the
// file is clean, meaning all of its records were loaded successfully.
func (s *LocalFile) loadFile(path string) (bool, error) {
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return false, &ExtractError{Message: fmt.Sprintf("could not read '%s'", path), Err: err}
	}

	records, err := parseRecords(raw)
	if err != nil {
		s.log.Warn().Err(err).Msgf("Skipping unparseable file '%s'", path)
		return false, nil
	}

	clean := true
	for _, record := range records {
		s.markProcessed()

		createdOn, err := record.createdOn()
		if err != nil {
			s.log.Warn().Err(err).Msgf("Bad record in '%s'", path)
			clean = false
			continue
		}

		if err := s.save(record, createdOn); err != nil {
			return false, err
		}

		s.markSuccess()
		s.observe(createdOn)
		s.log.Debug().Msgf("Found record #%03d", s.report.NumberProcessed)
	}
	return clean, nil
}
