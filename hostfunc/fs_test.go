package hostfunc

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSReadOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "layout.json"), []byte(`{"thirds":0.8}`), 0o644))

	fs := NewFS([]Mount{{VirtualPath: "/data", HostPath: dir, Mode: MountReadOnly}})
	ctx := context.Background()

	content, err := fs.Read(ctx, map[string]any{"path": "/data/layout.json"})
	require.NoError(t, err)
	assert.Equal(t, `{"thirds":0.8}`, content)

	_, err = fs.Write(ctx, map[string]any{"path": "/data/layout.json", "content": "x"})
	assert.ErrorContains(t, err, "read-only")
}

func TestFSReadWriteCannotCreate(t *testing.T) {
	dir := t.TempDir()
	fs := NewFS([]Mount{{VirtualPath: "/out", HostPath: dir, Mode: MountReadWrite}})

	_, err := fs.Write(context.Background(), map[string]any{"path": "/out/new.jpg", "content": "x"})
	assert.ErrorContains(t, err, "cannot create")
}

func TestFSBinaryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewFS([]Mount{{VirtualPath: "/downloads", HostPath: dir, Mode: MountReadWriteCreate}})
	ctx := context.Background()

	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}
	encoded := base64.StdEncoding.EncodeToString(jpeg)

	_, err := fs.Mkdir(ctx, map[string]any{"path": "/downloads/posts"})
	require.NoError(t, err)

	_, err = fs.Write(ctx, map[string]any{"path": "/downloads/posts/abc.jpg", "content": encoded, "encoding": "base64"})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, "posts", "abc.jpg"))
	require.NoError(t, err)
	assert.Equal(t, jpeg, onDisk)

	got, err := fs.Read(ctx, map[string]any{"path": "/downloads/posts/abc.jpg", "encoding": "base64"})
	require.NoError(t, err)
	assert.Equal(t, encoded, got)
}

func TestFSRejectsEscapes(t *testing.T) {
	fs := NewFS([]Mount{{VirtualPath: "/data", HostPath: t.TempDir(), Mode: MountReadWriteCreate}})
	ctx := context.Background()

	_, err := fs.Read(ctx, map[string]any{"path": "/etc/passwd"})
	assert.ErrorContains(t, err, "not in any mount")

	_, err = fs.Read(ctx, map[string]any{"path": "/data/../../etc/passwd"})
	assert.Error(t, err)

	exists, err := fs.Exists(ctx, map[string]any{"path": "/etc/passwd"})
	require.NoError(t, err)
	assert.Equal(t, false, exists)
}

func TestFSLimits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), make([]byte, 64), 0o644))

	fs := NewFS([]Mount{{VirtualPath: "/data", HostPath: dir, Mode: MountReadWriteCreate}},
		WithMaxFileSize(16), WithMaxWriteSize(8), WithMaxPathLength(32))
	ctx := context.Background()

	_, err := fs.Read(ctx, map[string]any{"path": "/data/big.bin"})
	assert.ErrorContains(t, err, "max size")

	_, err = fs.Write(ctx, map[string]any{"path": "/data/small.txt", "content": "0123456789"})
	assert.ErrorContains(t, err, "max write size")

	_, err = fs.Stat(ctx, map[string]any{"path": "/data/" + string(make([]byte, 40))})
	assert.ErrorContains(t, err, "max length")
}

func TestFSListAndStat(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	fs := NewFS([]Mount{{VirtualPath: "/data", HostPath: dir, Mode: MountReadOnly}})
	ctx := context.Background()

	list, err := fs.List(ctx, map[string]any{"path": "/data"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	st, err := fs.Stat(ctx, map[string]any{"path": "/data/a.png"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.(map[string]any)["size"])
}

func TestParseMountMode(t *testing.T) {
	for in, want := range map[string]MountMode{"ro": MountReadOnly, "rw": MountReadWrite, "rwc": MountReadWriteCreate} {
		got, err := ParseMountMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMountMode("x")
	assert.Error(t, err)
}
