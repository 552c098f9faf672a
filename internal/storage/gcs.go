package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS is a StorageAdapter backed by Google Cloud Storage. Paths are of
// the form "gs://bucket/object/with/slashes". Included primarily to
// exercise the cloud.google.com/go/storage dependency from the pack
// alongside the S3 and Azure adapters (spec.md §4.1 allows for
// additional user-defined backends behind the same interface).
type GCS struct {
	root   string
	bucket string
	client *storage.Client
}

var _ Adapter = (*GCS)(nil)

// NewGCS creates a GCS adapter rooted at rootURL (e.g. "gs://my-bucket/ana").
func NewGCS(ctx context.Context, rootURL string) (*GCS, error) {
	bucket, _, err := splitGCS(rootURL)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return &GCS{root: rootURL, bucket: bucket, client: client}, nil
}

func (a *GCS) Root() string { return a.root }

func splitGCS(u string) (bucket, object string, err error) {
	u = strings.TrimPrefix(u, "gs://")
	parts := strings.SplitN(u, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid gs URL: missing bucket")
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

func (a *GCS) object(path string) string {
	resolved := ExpandPath(path, a.root)
	_, obj, _ := splitGCS(resolved)
	return strings.TrimPrefix(obj, "/")
}

func (a *GCS) Exists(ctx context.Context, path string, ensure bool) (bool, error) {
	_, err := a.client.Bucket(a.bucket).Object(a.object(path)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if ensure {
		return false, &IOError{Path: path}
	}
	return false, nil
}

func (a *GCS) List(ctx context.Context, path, pattern string) ([]string, error) {
	prefix := a.object(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		name := attrs.Name
		if name == "" {
			name = attrs.Prefix
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(name, prefix), "/"))
	}
	return FilterGlob(pattern, names), nil
}

func (a *GCS) Copy(ctx context.Context, src, dst string) error {
	if !strings.HasPrefix(src, "gs://") && !strings.Contains(src, "$PATH") {
		in, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("open %s: %w", src, err)
		}
		defer in.Close()
		w := a.client.Bucket(a.bucket).Object(a.object(dst)).NewWriter(ctx)
		if _, err := io.Copy(w, in); err != nil {
			w.Close()
			return fmt.Errorf("upload %s: %w", dst, err)
		}
		return w.Close()
	}
	if !strings.HasPrefix(dst, "gs://") {
		out, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}
		defer out.Close()
		r, err := a.client.Bucket(a.bucket).Object(a.object(src)).NewReader(ctx)
		if err != nil {
			return fmt.Errorf("download %s: %w", src, err)
		}
		defer r.Close()
		_, err = io.Copy(out, r)
		return err
	}
	return fmt.Errorf("gcs: remote-to-remote copy not supported, stage through local")
}

func (a *GCS) Remove(ctx context.Context, path string) error {
	if err := a.client.Bucket(a.bucket).Object(a.object(path)).Delete(ctx); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Mkdir is a no-op: GCS has no directory objects, keys imply hierarchy.
func (a *GCS) Mkdir(ctx context.Context, path string) error { return nil }

// Chmod is a no-op: GCS has no POSIX permission model.
func (a *GCS) Chmod(ctx context.Context, path string, mode string) error { return nil }

func (a *GCS) Hadd(ctx context.Context, sources []string, target string) error {
	return stageAndHadd(ctx, sources, target,
		func(ctx context.Context, src, localPath string) error { return a.Copy(ctx, src, localPath) },
		func(ctx context.Context, localPath, dst string) error { return a.Copy(ctx, localPath, dst) },
	)
}
