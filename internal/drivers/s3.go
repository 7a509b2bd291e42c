package drivers

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"crosscopy/internal/supervise"
)

// s3Scheme is the locator scheme for object-storage prefixes.
const s3Scheme = "s3://"

// S3Locator is an object-storage prefix holding CSV objects. The location is
// always a "directory": the path must be absolute and end with a separator.
// Listing, reading, and writing individual objects is delegated to an
// ObjectStore collaborator.
type S3Locator struct {
	url   *url.URL
	store ObjectStore
}

var (
	_ DataSource   = (*S3Locator)(nil)
	_ DataSink     = (*S3Locator)(nil)
	_ RemoteWriter = (*S3Locator)(nil)
)

func parseS3Locator(s string, store ObjectStore) (*S3Locator, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %q: %w", s, err)
	}
	switch {
	case u.Scheme != "s3":
		return nil, fmt.Errorf("expected %q to begin with s3://", s)
	case u.Host == "":
		return nil, fmt.Errorf("%s is missing a bucket", s)
	case !strings.HasPrefix(u.Path, "/"):
		return nil, fmt.Errorf("%s must have an absolute path", s)
	case !strings.HasSuffix(u.Path, "/"):
		return nil, fmt.Errorf("%s must end with a '/'", s)
	}
	return &S3Locator{url: u, store: store}, nil
}

func (l *S3Locator) String() string { return l.url.String() }

func (l *S3Locator) Scheme() string { return s3Scheme }

func (l *S3Locator) Features() Features { return s3Features() }

func s3Features() Features {
	return Features{
		Locator:      FeatureLocalData | FeatureWriteLocalData | FeatureWriteRemoteData,
		DestIfExists: IfExistsFeatureOverwrite,
	}
}

// Bucket returns the bucket component of the locator.
func (l *S3Locator) Bucket() string { return l.url.Host }

// Prefix returns the object-key prefix, without the leading slash.
func (l *S3Locator) Prefix() string { return strings.TrimPrefix(l.url.Path, "/") }

// LocalData lists the objects under the prefix and produces one lazily
// fetched partition per *.csv / *.CSV object, named by its key relative to
// the prefix with the extension stripped.
func (l *S3Locator) LocalData(sctx *supervise.Context, args SourceArgs) ([]CsvStream, error) {
	if err := args.Query.CheckUnsupported(s3Scheme); err != nil {
		return nil, err
	}
	if err := args.Args.CheckUnsupported(s3Scheme); err != nil {
		return nil, err
	}

	bucket, prefix := l.Bucket(), l.Prefix()
	sctx.Logger().Debug("listing objects", "bucket", bucket, "prefix", prefix)
	keys, err := l.store.List(sctx.Context(), bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", l, err)
	}

	streams := make([]CsvStream, 0, len(keys))
	for _, key := range keys {
		ext := path.Ext(key)
		if ext != ".csv" && ext != ".CSV" {
			return nil, fmt.Errorf("s3://%s/%s must end in *.csv or *.CSV", bucket, key)
		}
		name, err := objectStreamName(prefix, key)
		if err != nil {
			return nil, err
		}
		streams = append(streams, CsvStream{
			Name: name,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				r, err := l.store.Get(ctx, bucket, key)
				if err != nil {
					return nil, fmt.Errorf("cannot read s3://%s/%s: %w", bucket, key, err)
				}
				return r, nil
			},
		})
	}
	return streams, nil
}

// WriteLocalData uploads each partition as its own object at
// <prefix><name>.csv. Object stores have no append or exclusive-create, so
// only the overwrite policy is supported.
func (l *S3Locator) WriteLocalData(sctx *supervise.Context, data []CsvStream, args DestArgs) ([]Completion, error) {
	if err := args.Args.CheckUnsupported(s3Scheme); err != nil {
		return nil, err
	}
	if args.IfExists != IfExistsOverwrite {
		return nil, fmt.Errorf("%s destinations only support --if-exists=overwrite", s3Scheme)
	}

	bucket, prefix := l.Bucket(), l.Prefix()
	completions := make([]Completion, 0, len(data))
	for _, stream := range data {
		completions = append(completions, func() error {
			key := prefix + stream.Name + ".csv"
			child := sctx.Child("stream", stream.Name, "key", key)
			child.Logger().Debug("uploading object", "bucket", bucket)
			r, err := stream.Open(child.Context())
			if err != nil {
				return fmt.Errorf("cannot open stream %s: %w", stream.Name, err)
			}
			defer r.Close()
			if err := l.store.Put(child.Context(), bucket, key, r); err != nil {
				return fmt.Errorf("cannot write s3://%s/%s: %w", bucket, key, err)
			}
			return nil
		})
	}
	return completions, nil
}

// SupportsWriteRemoteData reports true only for warehouse sources that can
// export straight to object storage with a native bulk command. Any other
// source goes through the generic stream-and-write path.
func (l *S3Locator) SupportsWriteRemoteData(source Locator) bool {
	_, ok := source.(*DuckDBLocator)
	return ok
}

// WriteRemoteData asks the warehouse source to export directly into this
// prefix, bypassing local staging entirely.
func (l *S3Locator) WriteRemoteData(sctx *supervise.Context, source Locator, srcArgs SourceArgs, dstArgs DestArgs) error {
	if err := dstArgs.Args.CheckUnsupported(s3Scheme); err != nil {
		return err
	}
	if dstArgs.IfExists != IfExistsOverwrite {
		return fmt.Errorf("%s destinations only support --if-exists=overwrite", s3Scheme)
	}
	warehouse, ok := source.(*DuckDBLocator)
	if !ok {
		return fmt.Errorf("cannot transfer directly from %s to %s", source, l)
	}
	return warehouse.exportToObjectStore(sctx, l, srcArgs.Query)
}
