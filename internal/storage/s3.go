package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 is a StorageAdapter backed by an S3-compatible object store.
// Paths are of the form "s3://bucket/key/with/slashes".
type S3 struct {
	root   string
	bucket string
	client *s3.Client
}

var _ Adapter = (*S3)(nil)

// NewS3 creates an S3 adapter rooted at rootURL (e.g. "s3://my-bucket/ana").
func NewS3(ctx context.Context, rootURL string) (*S3, error) {
	bucket, _, err := splitS3(rootURL)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &S3{root: rootURL, bucket: bucket, client: s3.NewFromConfig(cfg)}, nil
}

func (a *S3) Root() string { return a.root }

func splitS3(u string) (bucket, key string, err error) {
	u = strings.TrimPrefix(u, "s3://")
	parts := strings.SplitN(u, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid s3 URL: missing bucket")
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

func (a *S3) key(path string) string {
	resolved := ExpandPath(path, a.root)
	_, key, _ := splitS3(resolved)
	return strings.TrimPrefix(key, "/")
}

func (a *S3) Exists(ctx context.Context, path string, ensure bool) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
	if err == nil {
		return true, nil
	}
	if ensure {
		return false, &IOError{Path: path}
	}
	return false, nil
}

func (a *S3) List(ctx context.Context, path, pattern string) ([]string, error) {
	prefix := a.key(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
		for _, cp := range page.CommonPrefixes {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/"))
		}
	}
	return FilterGlob(pattern, names), nil
}

func (a *S3) Copy(ctx context.Context, src, dst string) error {
	// Local -> remote upload.
	if !strings.HasPrefix(src, "s3://") && !strings.Contains(src, "$PATH") {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}
		return a.put(ctx, dst, bytes.NewReader(data), int64(len(data)))
	}
	// Remote -> local download.
	if !strings.HasPrefix(dst, "s3://") {
		out, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}
		defer out.Close()
		return a.get(ctx, src, out)
	}
	return fmt.Errorf("s3: remote-to-remote copy not supported, stage through local")
}

func (a *S3) put(ctx context.Context, dst string, body io.Reader, size int64) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(dst)),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", dst, err)
	}
	return nil
}

func (a *S3) get(ctx context.Context, src string, w io.Writer) error {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(src)),
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", src, err)
	}
	defer out.Body.Close()
	_, err = io.Copy(w, out.Body)
	return err
}

func (a *S3) Remove(ctx context.Context, path string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Mkdir is a no-op: S3 has no directory objects, keys imply hierarchy.
func (a *S3) Mkdir(ctx context.Context, path string) error { return nil }

// Chmod is a no-op: S3 has no POSIX permission model.
func (a *S3) Chmod(ctx context.Context, path string, mode string) error { return nil }

func (a *S3) Hadd(ctx context.Context, sources []string, target string) error {
	return stageAndHadd(ctx, sources, target,
		func(ctx context.Context, src, localPath string) error { return a.Copy(ctx, src, localPath) },
		func(ctx context.Context, localPath, dst string) error { return a.Copy(ctx, localPath, dst) },
	)
}
