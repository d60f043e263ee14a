// Package archive assembles ZIP bundles from object-store reads. Entries
// are streamed write-as-you-read; the full archive is never held in
// memory. The build worker spools to a temp file before uploading, the
// streaming delivery path writes straight into the HTTP response.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"

	"github.com/bundlevault/bundlevault/internal/models"
)

// Getter is the read side of the object store.
type Getter interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// WriteEntry streams one asset from the store into the archive as a
// compressed entry.
func WriteEntry(ctx context.Context, zw *zip.Writer, store Getter, asset models.DownloadAsset) error {
	src, err := store.Get(ctx, asset.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", asset.Path, err)
	}
	defer src.Close()

	hdr := &zip.FileHeader{
		Name:   entryName(asset),
		Method: zip.Deflate,
	}
	hdr.SetMode(0o644)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write entry %s: %w", hdr.Name, err)
	}
	return nil
}

// Stream writes a complete archive of the assets to w in selection order.
// Used by the streaming delivery path, where w is the response body.
func Stream(ctx context.Context, w io.Writer, store Getter, assets []models.DownloadAsset) error {
	zw := zip.NewWriter(w)
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := WriteEntry(ctx, zw, store, a); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Entry names carry the selection index so duplicate filenames never
// collide inside the archive.
func entryName(a models.DownloadAsset) string {
	if a.Filename != "" {
		return fmt.Sprintf("%03d_%s", a.Index, a.Filename)
	}
	return fmt.Sprintf("%03d", a.Index)
}
