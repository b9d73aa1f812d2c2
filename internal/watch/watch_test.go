package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, dir string, opts Options) (*Watcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	if opts.Debounce == 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	w, err := New(dir, rec.handle, opts)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, rec
}

func TestWatcher_SubmitsNewContract(t *testing.T) {
	dir := t.TempDir()
	w, rec := startWatcher(t, dir, Options{})

	path := filepath.Join(dir, "Demo NDA.docx")
	require.NoError(t, os.WriteFile(path, []byte("part one"), 0600))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString(" part two")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{path}, rec.seen())
	assert.True(t, w.Submitted(path))

	// Writes after submission are ignored.
	require.NoError(t, os.WriteFile(path, []byte("rewritten"), 0600))
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, rec.seen(), 1)
}

func TestWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	_, rec := startWatcher(t, dir, Options{})

	for _, name := range []string{"notes.txt", ".hidden.pdf", "~$Demo.docx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}
	pdf := filepath.Join(dir, "msa.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.7"), 0600))

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{pdf}, rec.seen())
}

func TestWatcher_ScanExisting(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.pdf")
	require.NoError(t, os.WriteFile(existing, []byte("%PDF-1.7"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0700))

	_, rec := startWatcher(t, dir, Options{ScanExisting: true})

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{existing}, rec.seen())
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, rec.handle, Options{Debounce: time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0600))
	time.Sleep(50 * time.Millisecond)

	w.Stop()
	w.Stop()
	assert.Empty(t, rec.seen())
}

func TestWatcher_HandlerContextCancelledOnStop(t *testing.T) {
	dir := t.TempDir()
	started := make(chan struct{})
	done := make(chan error, 1)
	w, err := New(dir, func(ctx context.Context, _ string) {
		close(started)
		<-ctx.Done()
		done <- ctx.Err()
	}, Options{Debounce: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.docx"), []byte("x"), 0600))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for handler")
	}

	w.Stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()

	_, err := New(dir, nil, Options{})
	assert.Error(t, err)

	_, err = New(filepath.Join(dir, "missing"), func(context.Context, string) {}, Options{})
	assert.Error(t, err)

	file := filepath.Join(dir, "f.pdf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))
	_, err = New(file, func(context.Context, string) {}, Options{})
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestEligible(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/in/contract.pdf", true},
		{"/in/Contract.DOCX", true},
		{"/in/contract.doc", false},
		{"/in/.contract.pdf", false},
		{"/in/~$contract.docx", false},
		{"/in/readme", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, eligible(tt.path))
		})
	}
}
