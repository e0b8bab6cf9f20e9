package storage

import (
	"bytes"
	"context"
	"dm-lab/errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Smallest valid PNG header, enough for content sniffing.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

func TestDiskObjectStore_Save(t *testing.T) {
	req := require.New(t)
	root := t.TempDir()
	store, err := NewDiskObjectStore(root, "http://localhost:8080/uploads/", 1024)
	req.NoError(err)

	// When saving a png sent with a misleading name
	obj, err := store.Save(context.Background(), "holiday.txt", bytes.NewReader(pngHeader))
	req.NoError(err)

	// Then the type comes from the content
	req.Equal("image/png", obj.MIME)
	req.True(strings.HasPrefix(obj.URL, "http://localhost:8080/uploads/"))
	req.True(strings.HasSuffix(obj.URL, ".png"))
	req.Equal(int64(len(pngHeader)), obj.Size)

	_, err = os.Stat(filepath.Join(root, filepath.Base(obj.URL)))
	req.NoError(err)
}

func TestDiskObjectStore_Limits(t *testing.T) {
	req := require.New(t)
	store, err := NewDiskObjectStore(t.TempDir(), "http://x", 8)
	req.NoError(err)

	_, err = store.Save(context.Background(), "big.bin", bytes.NewReader(make([]byte, 9)))
	req.ErrorIs(err, errors.ErrValidation)

	_, err = store.Save(context.Background(), "empty.bin", bytes.NewReader(nil))
	req.ErrorIs(err, errors.ErrValidation)
}
