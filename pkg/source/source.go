// Package source resolves input locations (local paths or s3://bucket/key)
// and loads them into tables.
package source

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/parser"
	"github.com/logflow/processlens/pkg/table"
)

// Scheme identifies where a location lives.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeS3   Scheme = "s3"
)

// Location is a parsed input URI.
type Location struct {
	Scheme Scheme
	Bucket string
	// Path is the local path or the object key.
	Path string
}

// String returns the location in URI form.
func (l Location) String() string {
	if l.Scheme == SchemeS3 {
		return "s3://" + l.Bucket + "/" + l.Path
	}
	return l.Path
}

// Format guesses the table format from the file or key extension.
func (l Location) Format() parser.Format {
	return parser.DetectFormat(path.Base(l.Path))
}

// Parse parses "s3://bucket/key", "file:///path" or a plain path.
func Parse(uri string) (Location, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		u, err := url.Parse(uri)
		if err != nil {
			return Location{}, perrors.Wrap(err, perrors.CodeSourceFailed, "invalid S3 URI").
				WithContext("uri", uri)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, perrors.New(perrors.CodeSourceFailed, "S3 URI needs a bucket and a key").
				WithContext("uri", uri)
		}
		return Location{Scheme: SchemeS3, Bucket: u.Host, Path: key}, nil
	case strings.HasPrefix(uri, "file://"):
		return Location{Scheme: SchemeFile, Path: strings.TrimPrefix(uri, "file://")}, nil
	case uri == "":
		return Location{}, perrors.New(perrors.CodeSourceFailed, "empty input location")
	default:
		return Location{Scheme: SchemeFile, Path: uri}, nil
	}
}

// Resolver opens locations. The S3 client is created on first use.
type Resolver struct {
	s3cfg S3Config
	s3    *s3Opener
}

// NewResolver creates a resolver with the given S3 settings.
func NewResolver(cfg S3Config) *Resolver {
	return &Resolver{s3cfg: cfg, s3: &s3Opener{cfg: cfg}}
}

// WithObjectClient replaces the S3 client, typically with a stub.
func (r *Resolver) WithObjectClient(c ObjectClient) *Resolver {
	r.s3 = &s3Opener{cfg: r.s3cfg, client: c}
	return r
}

// Open returns a reader for loc.
func (r *Resolver) Open(ctx context.Context, loc Location) (io.ReadCloser, error) {
	switch loc.Scheme {
	case SchemeS3:
		return r.s3.open(ctx, loc.Bucket, loc.Path)
	default:
		f, err := os.Open(loc.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, perrors.FileNotFound(loc.Path)
			}
			return nil, perrors.Wrap(err, perrors.CodeSourceFailed, "cannot open file").
				WithContext("path", loc.Path)
		}
		return f, nil
	}
}

// Load opens uri and reads it with the loader matching its extension.
func (r *Resolver) Load(ctx context.Context, uri string, cfg parser.Config) (*table.Table, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme == SchemeFile {
		return parser.Load(ctx, loc.Path, cfg)
	}
	if loc.Format() == parser.FormatUnknown {
		return nil, perrors.New(perrors.CodeInvalidFormat, "cannot load object: unknown format").
			WithContext("uri", loc.String())
	}

	rc, err := r.Open(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return parser.LoadReader(ctx, path.Base(loc.Path), rc, cfg)
}
