package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

const rotatedStamp = "20060102-150405"

// FileRotator is an io.Writer over a log file that rotates by size and by
// calendar day. Rotated files get a timestamp suffix and are gzipped in the
// background when compression is on.
type FileRotator struct {
	config *Config
	now    func() time.Time

	mu   sync.Mutex
	file *os.File
	size int64
	day  string // YYYY-MM-DD the open file was started on
}

// NewFileRotator opens (or creates) cfg.FilePath for appending.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{config: cfg, now: time.Now}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	r.day = r.now().Format(time.DateOnly)
	return nil
}

// Write appends p, rotating first when p would overflow MaxSize or the day
// has changed.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.due(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) due(n int64) bool {
	limit := r.config.MaxSize << 20
	if limit > 0 && r.size > 0 && r.size+n > limit {
		return true
	}
	return r.now().Format(time.DateOnly) != r.day
}

func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	r.file = nil

	dir, stem, ext := r.parts()
	rotated := filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, r.now().Format(rotatedStamp), ext))
	if err := os.Rename(r.config.FilePath, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	if err := r.open(); err != nil {
		return err
	}

	go func() {
		if r.config.Compress {
			_ = compressFile(rotated)
		}
		r.prune()
	}()
	return nil
}

// parts splits FilePath into directory, name stem and extension.
func (r *FileRotator) parts() (dir, stem, ext string) {
	dir = filepath.Dir(r.config.FilePath)
	base := filepath.Base(r.config.FilePath)
	ext = filepath.Ext(base)
	return dir, strings.TrimSuffix(base, ext), ext
}

// backups lists rotated files, compressed or not.
func (r *FileRotator) backups() ([]string, error) {
	dir, stem, ext := r.parts()
	return filepath.Glob(filepath.Join(dir, stem+"-*"+ext+"*"))
}

// prune enforces MaxBackups (oldest first) and MaxAge in days.
func (r *FileRotator) prune() {
	paths, err := r.backups()
	if err != nil {
		return
	}
	type backup struct {
		path string
		mod  time.Time
	}
	files := make([]backup, 0, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			files = append(files, backup{p, info.ModTime()})
		}
	}
	slices.SortFunc(files, func(a, b backup) int { return a.mod.Compare(b.mod) })

	if keep := r.config.MaxBackups; keep > 0 && len(files) > keep {
		for _, f := range files[:len(files)-keep] {
			os.Remove(f.path)
		}
		files = files[len(files)-keep:]
	}
	if r.config.MaxAge > 0 {
		cutoff := r.now().AddDate(0, 0, -r.config.MaxAge)
		for _, f := range files {
			if f.mod.Before(cutoff) {
				os.Remove(f.path)
			}
		}
	}
}

// compressFile replaces path with path.gz.
func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		out.Close()
		return err
	}
	gz.Name = filepath.Base(path)

	_, err = io.Copy(gz, in)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path + ".gz")
		return err
	}
	return os.Remove(path)
}

// Close closes the current file. A later Write reopens it.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Sync flushes the current file.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// LogFiles returns the current file followed by its rotated backups.
func (r *FileRotator) LogFiles() ([]string, error) {
	backups, err := r.backups()
	return append([]string{r.config.FilePath}, backups...), err
}
