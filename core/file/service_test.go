package file_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/file"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
	testutil "github.com/cwarwicker/elbp/tests"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

func newService(t *testing.T, maxSize int64) (*file.Service, string) {
	root := t.TempDir()
	db := testutil.PrepareDB(t)
	return file.NewService(sqlxrepos.NewFileRepository(db), root, maxSize, &testutil.Logger{}), root
}

func TestService_StoreAndOpen(t *testing.T) {
	ctx := context.Background()
	svc, root := newService(t, 0)

	f, err := svc.Store(ctx, 7, "../../Evidence.PNG", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Len(t, f.Code, 32)
	assert.Equal(t, "Evidence.PNG", f.Filename)
	assert.Equal(t, "image/png", f.MimeType)
	assert.Equal(t, int64(len(pngHeader)), f.Size)
	assert.True(t, strings.HasPrefix(f.Path, filepath.Join("uploads", "7")+string(filepath.Separator)))
	assert.Equal(t, ".png", filepath.Ext(f.Path))
	assert.NotContains(t, f.Path, f.Code, "the stored name is not the download code")

	got, rd, err := svc.Open(ctx, strings.ToUpper(f.Code))
	require.NoError(t, err)
	defer rd.Close()
	data, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, f.Filename, got.Filename)

	require.NoError(t, svc.Delete(ctx, f.Code))
	_, err = os.Stat(filepath.Join(root, f.Path))
	assert.True(t, os.IsNotExist(err))
	_, err = svc.Resolve(ctx, f.Code)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, 0)

	tests := []struct {
		name string
		code string
	}{
		{name: "empty", code: ""},
		{name: "path traversal", code: "../../etc/passwd"},
		{name: "unknown", code: file.NewCode()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Resolve(ctx, tt.code)
			assert.True(t, core.IsNotFound(err))
		})
	}
}

func TestService_StoreRejects(t *testing.T) {
	ctx := context.Background()
	svc, root := newService(t, 4)

	_, err := svc.Store(ctx, 1, "big.txt", strings.NewReader("too long"))
	require.Error(t, err)
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok)

	_, err = svc.Store(ctx, 1, "  ", strings.NewReader("x"))
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "uploads", "1"))
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")
}
