// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultDownloadTimeout bounds a single object download.
const DefaultDownloadTimeout = 2 * time.Minute

var (
	// ErrRemoteDisabled is returned when an s3:// input is given to a stager
	// without an S3 client.
	ErrRemoteDisabled = errors.New("s3 staging is not configured")

	// ErrNotRegular is returned for local inputs that are not regular files.
	ErrNotRegular = errors.New("not a regular file")
)

// Downloader is the subset of manager.Downloader the stager uses.
type Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// S3Config selects the bucket endpoint and credentials. Empty credentials
// fall back to the default AWS chain.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Staged is a local copy of an input.
type Staged struct {
	// Path is the local file to process.
	Path string

	// Filename is the original name of the input.
	Filename string

	// Source is the input Path was copied from.
	Source string

	// Remote is true when Source is an s3:// object.
	Remote bool

	// Size is the number of bytes staged.
	Size int64

	cleanup func() error
}

// Cleanup removes the temporary copy. It is safe to call more than once and
// after the file was already removed.
func (s *Staged) Cleanup() error {
	if s == nil || s.cleanup == nil {
		return nil
	}
	fn := s.cleanup
	s.cleanup = nil
	return fn()
}

// Stager resolves inputs to local files.
type Stager struct {
	downloader Downloader
	dir        string
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Stager.
type Option func(*Stager)

// WithDownloader enables s3:// inputs using d.
func WithDownloader(d Downloader) Option {
	return func(s *Stager) {
		s.downloader = d
	}
}

// WithTempDir sets the directory downloads are written to.
func WithTempDir(dir string) Option {
	return func(s *Stager) {
		s.dir = dir
	}
}

// WithTimeout bounds each download.
func WithTimeout(d time.Duration) Option {
	return func(s *Stager) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stager) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStager creates a stager. Without WithDownloader only local paths resolve.
func NewStager(opts ...Option) *Stager {
	s := &Stager{
		timeout: DefaultDownloadTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "stager")
	return s
}

// NewS3Downloader builds a transfer manager downloader from cfg.
func NewS3Downloader(ctx context.Context, cfg S3Config) (*manager.Downloader, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// MinIO and other compatible servers need path-style addressing
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return manager.NewDownloader(client), nil
}

// RemoteEnabled reports whether s3:// inputs can be resolved.
func (s *Stager) RemoteEnabled() bool {
	return s.downloader != nil
}

// Resolve copies input into the staging directory and returns the copy.
// input is a local path or an s3:// URI. The source is never modified;
// Cleanup removes only the copy.
func (s *Stager) Resolve(ctx context.Context, input string) (*Staged, error) {
	if !IsRemote(input) {
		return s.copyLocal(input)
	}

	obj, err := ParseURI(input)
	if err != nil {
		return nil, err
	}
	if s.downloader == nil {
		return nil, fmt.Errorf("%w: %s", ErrRemoteDisabled, obj)
	}

	f, remove, err := s.createTemp(filepath.Ext(obj.Key))
	if err != nil {
		return nil, err
	}

	dlCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.downloader.Download(dlCtx, f, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = remove()
		return nil, fmt.Errorf("s3 download %s: %w", obj, err)
	}

	s.logger.Info("staged object", "object", obj.String(), "bytes", n, "path", f.Name(), "elapsed", time.Since(start))
	return &Staged{
		Path:     f.Name(),
		Filename: obj.Filename(),
		Source:   obj.String(),
		Remote:   true,
		Size:     n,
		cleanup:  remove,
	}, nil
}

func (s *Stager) copyLocal(input string) (*Staged, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, input)
	}

	src, err := os.Open(input)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	f, remove, err := s.createTemp(filepath.Ext(input))
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = remove()
		return nil, fmt.Errorf("copy %s: %w", input, err)
	}

	s.logger.Debug("staged file", "source", input, "bytes", n, "path", f.Name())
	return &Staged{
		Path:     f.Name(),
		Filename: filepath.Base(input),
		Source:   input,
		Size:     n,
		cleanup:  remove,
	}, nil
}

// createTemp opens a new staging file and returns a func that removes it.
func (s *Stager) createTemp(ext string) (*os.File, func() error, error) {
	f, err := os.CreateTemp(s.dir, "thinkdocs-*"+ext)
	if err != nil {
		return nil, nil, fmt.Errorf("create staging file: %w", err)
	}
	name := f.Name()
	remove := func() error {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return f, remove, nil
}
