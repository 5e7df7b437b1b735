package filestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSaveURLRemove(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "uploads")
	disk, err := NewDisk(dir, "/uploads/")
	require.NoError(t, err)

	up, err := Sniff("shot.png", int64(len(pngHeader)), bytes.NewReader(pngHeader), 0)
	require.NoError(t, err)

	ref, err := disk.Save(ctx, up)
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(ref))

	stored, err := os.ReadFile(filepath.Join(dir, ref))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)

	url, err := disk.URL(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/"+ref, url)

	require.NoError(t, disk.Remove(ctx, ref))
	_, err = os.Stat(filepath.Join(dir, ref))
	assert.True(t, os.IsNotExist(err))

	err = disk.Remove(ctx, ref)
	assert.ErrorIs(t, err, ErrNotExist)
	assert.NoError(t, RemoveIfExists(ctx, disk, ref))
}

func TestDiskRejectsTraversal(t *testing.T) {
	disk, err := NewDisk(t.TempDir(), "/uploads")
	require.NoError(t, err)
	_, err = disk.URL(context.Background(), "../secret")
	assert.Error(t, err)
	assert.Error(t, disk.Remove(context.Background(), "../secret"))
}
