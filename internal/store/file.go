// Package store mirrors in-memory collections to pretty-printed JSON files.
//
// Each File owns one path on disk and one writer goroutine. Callers hand it
// immutable snapshots tagged with a generation number; the writer always
// persists the newest snapshot it has seen and never lets an older generation
// overwrite a newer one. Saves are fire-and-forget: they never block on disk
// I/O, and failures are logged and counted rather than returned.
//
// Writes for one file are serialized; different files write independently.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by operations on a File after Close.
var ErrClosed = errors.New("store: file closed")

type pendingSave[S any] struct {
	gen  uint64
	data S
}

// File is the on-disk mirror of one collection of type S (usually a slice or
// a map). It is safe for concurrent use.
type File[S any] struct {
	name string
	path string
	perm fs.FileMode
	log  zerolog.Logger

	mu      sync.Mutex // guards pending, written, closed
	pending *pendingSave[S]
	written uint64
	closed  bool

	// writeMu serializes disk writes to path, including Replace.
	writeMu sync.Mutex

	wake   chan struct{}
	flushc chan chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Option configures a File.
type Option func(*options)

type options struct {
	perm fs.FileMode
}

// WithPerm sets the file mode used for new files (default 0644).
func WithPerm(perm fs.FileMode) Option {
	return func(o *options) {
		if perm != 0 {
			o.perm = perm
		}
	}
}

// NewFile returns a File for dir/name+".json" and starts its writer.
// The directory is not created here; see EnsureDir.
func NewFile[S any](dir, name string, opts ...Option) *File[S] {
	o := options{perm: 0o644}
	for _, fn := range opts {
		fn(&o)
	}
	f := &File[S]{
		name:   name,
		path:   filepath.Join(dir, name+".json"),
		perm:   o.perm,
		log:    log.With().Str("component", "store").Str("collection", name).Logger(),
		wake:   make(chan struct{}, 1),
		flushc: make(chan chan struct{}),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go f.run()
	return f
}

// EnsureDir creates the data directory if it does not exist.
func EnsureDir(dir string) error {
	if dir == "" {
		return errors.New("store: empty data directory")
	}
	return os.MkdirAll(dir, 0o755)
}

// Name returns the collection name.
func (f *File[S]) Name() string { return f.name }

// Path returns the absolute or relative path of the JSON file.
func (f *File[S]) Path() string { return f.path }

// Load reads and decodes the file. A missing or empty file yields the zero
// value of S and no error; a malformed file yields an error and the caller
// is expected to keep whatever state it already holds.
func (f *File[S]) Load() (S, error) {
	var out S
	start := time.Now()
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		loadErrors.WithLabelValues(f.name).Inc()
		return out, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		loadErrors.WithLabelValues(f.name).Inc()
		var zero S
		return zero, fmt.Errorf("decode %s: %w", f.path, err)
	}
	loadDuration.WithLabelValues(f.name).Observe(time.Since(start).Seconds())
	return out, nil
}

// Save queues snapshot for writing and returns immediately. If a newer
// generation is already queued or written, snapshot is dropped.
//
// The caller must not mutate snapshot after handing it over.
func (f *File[S]) Save(gen uint64, snapshot S) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.log.Warn().Uint64("gen", gen).Msg("save after close; writing synchronously")
		f.writeNow(gen, snapshot)
		return
	}
	if gen <= f.written || (f.pending != nil && f.pending.gen >= gen) {
		f.mu.Unlock()
		savesTotal.WithLabelValues(f.name, "stale").Inc()
		return
	}
	if f.pending != nil {
		savesTotal.WithLabelValues(f.name, "coalesced").Inc()
	}
	f.pending = &pendingSave[S]{gen: gen, data: snapshot}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Replace overwrites the file with raw JSON and marks gen as written, so any
// snapshot older than gen that is still in flight is discarded. It is used
// when restoring an archive.
func (f *File[S]) Replace(gen uint64, raw []byte) error {
	if !json.Valid(raw) {
		return fmt.Errorf("replace %s: invalid JSON", f.name)
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.fence(gen)
	return syncedWriteFile(f.path, raw, f.perm)
}

// Fence marks gen as written without touching the file: queued or late
// snapshots up to gen are discarded. A reload fences before reading so the
// file keeps matching what was loaded.
func (f *File[S]) Fence(gen uint64) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.fence(gen)
}

func (f *File[S]) fence(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil && f.pending.gen <= gen {
		f.pending = nil
	}
	if gen > f.written {
		f.written = gen
	}
}

// Flush blocks until every snapshot queued before the call has been written
// (or has failed and been logged), or ctx is done.
func (f *File[S]) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case f.flushc <- ack:
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes any pending snapshot and stops the writer. It is idempotent.
func (f *File[S]) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.quit)
	})
	<-f.done
	return nil
}

func (f *File[S]) run() {
	defer close(f.done)
	for {
		select {
		case <-f.wake:
			f.writePending()
		case ack := <-f.flushc:
			f.writePending()
			close(ack)
		case <-f.quit:
			f.writePending()
			return
		}
	}
}

func (f *File[S]) writePending() {
	f.mu.Lock()
	p := f.pending
	f.pending = nil
	f.mu.Unlock()
	if p == nil {
		return
	}
	f.writeNow(p.gen, p.data)
}

func (f *File[S]) writeNow(gen uint64, snapshot S) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.Lock()
	if gen <= f.written {
		f.mu.Unlock()
		savesTotal.WithLabelValues(f.name, "stale").Inc()
		return
	}
	f.mu.Unlock()

	start := time.Now()
	err := f.encodeAndWrite(snapshot)
	saveDuration.WithLabelValues(f.name).Observe(time.Since(start).Seconds())
	if err != nil {
		savesTotal.WithLabelValues(f.name, "error").Inc()
		f.log.Error().Err(err).Str("path", f.path).Uint64("gen", gen).Msg("persist collection")
		return
	}

	f.mu.Lock()
	if gen > f.written {
		f.written = gen
	}
	f.mu.Unlock()
	savesTotal.WithLabelValues(f.name, "ok").Inc()
}

func (f *File[S]) encodeAndWrite(snapshot S) error {
	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	b = append(b, '\n')
	return syncedWriteFile(f.path, b, f.perm)
}

// syncedWriteFile writes data to a temp file in the same directory, fsyncs
// it and renames it over path. On failure the original file is untouched.
func syncedWriteFile(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	ok = true
	return nil
}
