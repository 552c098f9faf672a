package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzBlob is a StorageAdapter backed by Azure Blob Storage. Paths are of
// the form "azblob://container/blob/with/slashes".
type AzBlob struct {
	root      string
	container string
	client    *azblob.Client
}

var _ Adapter = (*AzBlob)(nil)

// NewAzBlob creates an Azure Blob adapter rooted at rootURL
// (e.g. "azblob://my-container/ana"), connecting via the storage
// account connection string in the AZURE_STORAGE_CONNECTION_STRING
// environment variable.
func NewAzBlob(rootURL string) (*AzBlob, error) {
	container, _, err := splitAzBlob(rootURL)
	if err != nil {
		return nil, err
	}
	connStr := os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	if connStr == "" {
		return nil, fmt.Errorf("azblob: AZURE_STORAGE_CONNECTION_STRING not set")
	}
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("azblob: connect: %w", err)
	}
	return &AzBlob{root: rootURL, container: container, client: client}, nil
}

func (a *AzBlob) Root() string { return a.root }

func splitAzBlob(u string) (container, blob string, err error) {
	u = strings.TrimPrefix(u, "azblob://")
	parts := strings.SplitN(u, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid azblob URL: missing container")
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

func (a *AzBlob) blobName(path string) string {
	resolved := ExpandPath(path, a.root)
	_, blob, _ := splitAzBlob(resolved)
	return strings.TrimPrefix(blob, "/")
}

func (a *AzBlob) Exists(ctx context.Context, path string, ensure bool) (bool, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: stringPtr(a.blobName(path)),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("exists %s: %w", path, err)
		}
		if len(page.Segment.BlobItems) > 0 {
			return true, nil
		}
		break
	}
	if ensure {
		return false, &IOError{Path: path}
	}
	return false, nil
}

func (a *AzBlob) List(ctx context.Context, path, pattern string) ([]string, error) {
	prefix := a.blobName(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: stringPtr(prefix),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			names = append(names, strings.TrimPrefix(*item.Name, prefix))
		}
	}
	return FilterGlob(pattern, names), nil
}

func (a *AzBlob) Copy(ctx context.Context, src, dst string) error {
	if !strings.HasPrefix(src, "azblob://") && !strings.Contains(src, "$PATH") {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}
		_, err = a.client.UploadBuffer(ctx, a.container, a.blobName(dst), data, nil)
		if err != nil {
			return fmt.Errorf("upload %s: %w", dst, err)
		}
		return nil
	}
	if !strings.HasPrefix(dst, "azblob://") {
		out, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}
		defer out.Close()
		resp, err := a.client.DownloadStream(ctx, a.container, a.blobName(src), nil)
		if err != nil {
			return fmt.Errorf("download %s: %w", src, err)
		}
		body := resp.Body
		defer body.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, body); err != nil {
			return fmt.Errorf("download %s: %w", src, err)
		}
		_, err = out.Write(buf.Bytes())
		return err
	}
	return fmt.Errorf("azblob: remote-to-remote copy not supported, stage through local")
}

func (a *AzBlob) Remove(ctx context.Context, path string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, a.blobName(path), nil)
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Mkdir is a no-op: blob containers have no directory objects.
func (a *AzBlob) Mkdir(ctx context.Context, path string) error { return nil }

// Chmod is a no-op: blob storage has no POSIX permission model.
func (a *AzBlob) Chmod(ctx context.Context, path string, mode string) error { return nil }

func (a *AzBlob) Hadd(ctx context.Context, sources []string, target string) error {
	return stageAndHadd(ctx, sources, target,
		func(ctx context.Context, src, localPath string) error { return a.Copy(ctx, src, localPath) },
		func(ctx context.Context, localPath, dst string) error { return a.Copy(ctx, localPath, dst) },
	)
}

func stringPtr(s string) *string { return &s }
