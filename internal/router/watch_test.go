package router

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/maestro/pkg/models"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - backend: first\n"), 0644))

	r := New("fast")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := Watch(ctx, r, path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "first", r.Route(models.Task{}))

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - backend: second\n"), 0644))

	assert.Eventually(t, func() bool {
		return r.Route(models.Task{}) == "second"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_KeepsRulesOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - backend: first\n"), 0644))

	r := New("fast")
	errs := make(chan error, 10)
	ctx, cancel := context.WithCancel(context.Background())

	w, err := Watch(ctx, r, path, OnReloadError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	}))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: missing-backend\n"), 0644))

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected reload error")
	}
	assert.Equal(t, "first", r.Route(models.Task{}))

	cancel()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit after cancel")
	}
}

func TestWatch_MissingFile(t *testing.T) {
	_, err := Watch(context.Background(), New("fast"), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
