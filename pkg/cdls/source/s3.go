package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"

	"github.com/dbazile/cdls/pkg/cdls/config"
	"github.com/dbazile/cdls/pkg/cdls/config/sourcecfg"
	"github.com/dbazile/cdls/pkg/cdls/logging"
)

const defaultS3MaxRetry = 3

// S3 scans an S3 bucket prefix for supported data files, copying each one
// to an archive prefix once every contained record has been warehoused.
type S3 struct {
	base
	client        s3iface.S3API
	bucket        string
	queuePrefix   string
	archivePrefix string
	maxRetry      int
}

// NewS3 builds an s3 source from its configuration node.
func NewS3(node config.Node, deps Deps) (Source, error) {
	b, err := newBase(node, deps)
	if err != nil {
		return nil, err
	}

	var opts sourcecfg.S3
	if len(node.Options) > 0 {
		if err := json.Unmarshal(node.Options, &opts); err != nil {
			return nil, &config.SourceConfigurationError{
				Message: fmt.Sprintf("could not decode s3 options: %s", err),
				Node:    &node,
			}
		}
	}
	if err := config.RequireParam(node, "bucket", opts.Bucket); err != nil {
		return nil, err
	}
	if err := config.RequireParam(node, "queue_prefix", opts.QueuePrefix); err != nil {
		return nil, err
	}
	if err := config.RequireParam(node, "archive_prefix", opts.ArchivePrefix); err != nil {
		return nil, err
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = defaultS3MaxRetry
	}

	awsCfg := aws.NewConfig()
	if opts.Region != "" {
		awsCfg = awsCfg.WithRegion(opts.Region)
	}

	return &S3{
		base:          b,
		client:        s3.New(session.Must(session.NewSession(awsCfg))),
		bucket:        opts.Bucket,
		queuePrefix:   opts.QueuePrefix,
		archivePrefix: opts.ArchivePrefix,
		maxRetry:      opts.MaxRetry,
	}, nil
}

func (s *S3) Type() string {
	return "S3Source"
}

// Execute drains the queue prefix.
func (s *S3) Execute(ctx context.Context) (*Report, error) {
	s.startTimer()

	keys, err := s.listQueue()
	if err != nil {
		return s.finalize(false), err
	}

	leftBehind := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return s.finalize(false), err
		}

		clean, err := s.loadObject(key)
		if err != nil {
			return s.finalize(false), err
		}
		if !clean {
			leftBehind++
			continue
		}

		if err := s.archiveObject(key); err != nil {
			return s.finalize(false), err
		}
		s.log.Debug().Msgf("Archived 's3://%s/%s'", s.bucket, key)
	}

	if leftBehind > 0 {
		logging.Banner(s.log, zerolog.WarnLevel,
			fmt.Sprintf("%d object(s) under 's3://%s/%s' contained records that could not be loaded and were left in the queue for review.", leftBehind, s.bucket, s.queuePrefix))
	}

	return s.finalize(true), nil
}

func (s *S3) listQueue() ([]string, error) {
	var keys []string
	err := s.withRetry("list "+s.queuePrefix, func() error {
		keys = keys[:0]
		out, err := s.client.ListObjectsV2(&s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(s.queuePrefix),
		})
		if err != nil {
			return err
		}
		for _, obj := range out.Contents {
			key := aws.StringValue(obj.Key)
			if strings.HasSuffix(strings.ToLower(key), ".json") {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// loadObject warehouses every record in one object. It reports whether the
// object is clean, meaning all of its records were loaded successfully.
func (s *S3) loadObject(key string) (bool, error) {
	var raw []byte
	err := s.withRetry("get "+key, func() error {
		out, err := s.client.GetObject(&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		raw, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return false, err
	}

	records, err := parseRecords(raw)
	if err != nil {
		s.log.Warn().Err(err).Msgf("Skipping unparseable object '%s'", key)
		return false, nil
	}

	clean := true
	for _, record := range records {
		s.markProcessed()

		createdOn, err := record.createdOn()
		if err != nil {
			s.log.Warn().Err(err).Msgf("Bad record in '%s'", key)
			clean = false
			continue
		}

		if err := s.save(record, createdOn); err != nil {
			return false, err
		}

		s.markSuccess()
		s.observe(createdOn)
	}
	return clean, nil
}

func (s *S3) archiveObject(key string) error {
	dest := path.Join(s.archivePrefix, path.Base(key))
	err := s.withRetry("copy "+key, func() error {
		_, err := s.client.CopyObject(&s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			CopySource: aws.String(s.bucket + "/" + key),
			Key:        aws.String(dest),
		})
		return err
	})
	if err != nil {
		return err
	}
	return s.withRetry("delete "+key, func() error {
		_, err := s.client.DeleteObject(&s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

// withRetry attempts an S3 call up to maxRetry times before treating the
// failure as fatal.
func (s *S3) withRetry(what string, op func() error) error {
	var err error
	for attempt := 0; attempt < s.maxRetry; attempt++ {
		if err = op(); err == nil {
			return nil
		}
	}
	return &ExtractError{
		Message: fmt.Sprintf("attempted %s %d times with no success", what, s.maxRetry),
		Err:     err,
	}
}
