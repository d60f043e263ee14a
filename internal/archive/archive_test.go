package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bundlevault/bundlevault/internal/models"
)

type mapStore map[string][]byte

func (m mapStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m[key]
	if !ok {
		return nil, errors.New("no such object: " + key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestStream(t *testing.T) {
	store := mapStore{
		"assets/a": []byte("alpha contents"),
		"assets/b": []byte("bravo contents"),
		"assets/c": []byte("charlie contents"),
	}
	assets := []models.DownloadAsset{
		{Path: "assets/a", Filename: "report.pdf", Index: 0},
		{Path: "assets/b", Filename: "report.pdf", Index: 1}, // duplicate name
		{Path: "assets/c", Filename: "logo.png", Index: 2},
	}

	var buf bytes.Buffer
	if err := Stream(context.Background(), &buf, store, assets); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("output is not a valid zip: %v", err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(zr.File))
	}

	wantNames := []string{"000_report.pdf", "001_report.pdf", "002_logo.png"}
	wantBodies := []string{"alpha contents", "bravo contents", "charlie contents"}
	for i, f := range zr.File {
		if f.Name != wantNames[i] {
			t.Errorf("entry %d name = %q, want %q", i, f.Name, wantNames[i])
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != wantBodies[i] {
			t.Errorf("entry %d body = %q, want %q", i, body, wantBodies[i])
		}
	}
}

func TestStream_MissingObjectFails(t *testing.T) {
	assets := []models.DownloadAsset{{Path: "assets/missing", Filename: "x.bin"}}
	var buf bytes.Buffer
	if err := Stream(context.Background(), &buf, mapStore{}, assets); err == nil {
		t.Fatal("expected an error for a missing object")
	}
}

func TestStream_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assets := []models.DownloadAsset{{Path: "assets/a", Filename: "a"}}
	var buf bytes.Buffer
	err := Stream(ctx, &buf, mapStore{"assets/a": []byte("x")}, assets)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
