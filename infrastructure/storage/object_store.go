//go:generate go run go.uber.org/mock/mockgen -source=object_store.go -destination=../../mocks/mock_object_store.go -package=mocks
package storage

import (
	"bytes"
	"context"
	"dm-lab/errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// StoredObject describes an uploaded file once persisted.
type StoredObject struct {
	URL  string
	MIME string
	Size int64
}

type IObjectStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (StoredObject, error)
}

// DiskObjectStore writes uploads under a directory served as static files.
type DiskObjectStore struct {
	root    string
	baseURL string
	maxSize int64
}

func NewDiskObjectStore(root, baseURL string, maxSize int64) (*DiskObjectStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskObjectStore{root: root, baseURL: strings.TrimRight(baseURL, "/"), maxSize: maxSize}, nil
}

// Save detects the content type from the bytes themselves, the client name
// is only used as a fallback for the extension.
func (d *DiskObjectStore) Save(ctx context.Context, originalName string, r io.Reader) (StoredObject, error) {
	data, err := io.ReadAll(io.LimitReader(r, d.maxSize+1))
	if err != nil {
		return StoredObject{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return StoredObject{}, errors.Validation("uploaded file is empty")
	}
	if int64(len(data)) > d.maxSize {
		return StoredObject{}, errors.Validation("uploaded file exceeds %d bytes", d.maxSize)
	}
	if err = ctx.Err(); err != nil {
		return StoredObject{}, err
	}

	mtype := mimetype.Detect(data)
	ext := mtype.Extension()
	if ext == "" {
		ext = filepath.Ext(originalName)
	}
	name := uuid.NewString() + ext

	f, err := os.Create(filepath.Join(d.root, name))
	if err != nil {
		return StoredObject{}, errors.Transient(err)
	}
	defer f.Close()
	n, err := io.Copy(f, bytes.NewReader(data))
	if err != nil {
		return StoredObject{}, errors.Transient(err)
	}

	return StoredObject{
		URL:  fmt.Sprintf("%s/%s", d.baseURL, name),
		MIME: mtype.String(),
		Size: n,
	}, nil
}
