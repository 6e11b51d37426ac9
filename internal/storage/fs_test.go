package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tickets-tracker/internal/common"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	key := PageKey("abc123", 0)
	assert.Equal(t, "pages/abc123/page-001.png", key)
	assert.False(t, s.Exists(ctx, key))

	require.NoError(t, s.Put(ctx, key, strings.NewReader("png-bytes")))
	assert.True(t, s.Exists(ctx, key))

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(b))
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	err = s.Put(context.Background(), "../outside.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = s.Open(context.Background(), "pages/none.png")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestHashFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))
	h, err := HashFile(p)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h)
}
