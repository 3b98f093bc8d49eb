// Package logging provides the daemon's rotating log file writer.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingWriter appends to date-stamped log files. A new file starts on each
// UTC day, and within a day when the current file would exceed MaxBytes.
//
// With base path logs/graceaid.log the files come out as
// logs/graceaid-2026-08-25.log, logs/graceaid-2026-08-25-2.log and so on; the
// base path itself is maintained as a symlink to the active file.
type RotatingWriter struct {
	basePath string
	maxBytes int64

	mu    sync.Mutex
	day   string
	index int
	file  *os.File
	size  int64
}

// NewRotatingWriter opens the writer for the given base path. A base path of
// "-" disables file output entirely.
func NewRotatingWriter(basePath string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	w := &RotatingWriter{basePath: basePath, maxBytes: maxBytes}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

func (w *RotatingWriter) rotateIfNeeded(incoming int64) error {
	// UTC days keep rotation boundaries stable across timezone changes.
	today := time.Now().UTC().Format("2006-01-02")
	if w.file == nil || w.day != today {
		w.day = today
		w.index = 1
		return w.openCurrent()
	}
	if w.maxBytes > 0 && w.size+incoming > w.maxBytes {
		w.index++
		return w.openCurrent()
	}
	return nil
}

func (w *RotatingWriter) openCurrent() error {
	if w.file != nil {
		_ = w.file.Close()
	}
	dir, name := filepath.Split(w.basePath)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	filename := fmt.Sprintf("%s-%s%s", base, w.day, ext)
	if w.index > 1 {
		filename = fmt.Sprintf("%s-%s-%d%s", base, w.day, w.index, ext)
	}
	path := filepath.Join(dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	w.file = f
	w.size = size
	w.linkCurrent(path)
	return nil
}

// linkCurrent keeps the base path pointing at the active file so `tail -F` on
// the configured path survives rotation.
func (w *RotatingWriter) linkCurrent(target string) {
	if info, err := os.Lstat(w.basePath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, err := os.Readlink(w.basePath); err == nil && dest == target {
				return
			}
		}
		_ = os.Remove(w.basePath)
	}
	_ = os.Symlink(target, w.basePath)
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
