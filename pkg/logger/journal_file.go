package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupStamp names rotated journal files. It is fixed width, so the
// lexical order of backup names is their rotation order.
const backupStamp = "20060102T150405.000000000"

// journalFile appends lifecycle records to a single file and rotates it when
// it would exceed maxSize or, with daily set, when the calendar day changes.
// Rotated files are renamed to <base>-<stamp><ext> and pruned by count and by
// the time they were rotated.
type journalFile struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
	daily      bool
	now        func() time.Time

	size   int64
	period time.Time
}

// newJournalFile prepares the journal at path. maxSize is in bytes. The file
// itself is opened on the first write.
func newJournalFile(path string, maxSize int64, maxBackups, maxAgeDays int, daily bool) (*journalFile, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if maxSize <= 0 {
		maxSize = 100 * 1024 * 1024
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	return &journalFile{
		path:       path,
		maxSize:    maxSize,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
		daily:      daily,
		now:        time.Now,
	}, nil
}

// Write appends one record. A record is never split across files, and a record
// larger than maxSize still lands whole in a fresh file.
func (w *journalFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	now := w.now()
	if w.due(len(p), now) {
		if err := w.rotate(now); err != nil {
			return 0, err
		}
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close flushes the journal to stable storage and closes it.
func (w *journalFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	err := w.file.Close()
	w.file = nil
	w.size = 0
	return errors.Join(syncErr, err)
}

func (w *journalFile) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat journal: %w", err)
	}
	w.file = file
	w.size = info.Size()
	// 已有内容的文件归属于其最后写入的那一天。
	w.period = w.now()
	if w.size > 0 {
		w.period = info.ModTime()
	}
	return nil
}

func (w *journalFile) due(incoming int, now time.Time) bool {
	if w.size == 0 {
		return false
	}
	if w.size+int64(incoming) > w.maxSize {
		return true
	}
	return w.daily && !sameDay(w.period, now)
}

func (w *journalFile) rotate(now time.Time) error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	w.size = 0
	if err := os.Rename(w.path, w.backupName(now)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate journal: %w", err)
	}
	w.prune(now)
	return nil
}

func (w *journalFile) backupName(now time.Time) string {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	stamp := now.Local().Format(backupStamp)
	name := fmt.Sprintf("%s-%s%s", base, stamp, ext)
	for i := 1; fileExists(name); i++ {
		name = fmt.Sprintf("%s-%s_%03d%s", base, stamp, i, ext)
	}
	return name
}

type journalBackup struct {
	path      string
	rotatedAt time.Time
}

// backups lists rotated files, oldest first. Files that merely share the
// prefix are ignored.
func (w *journalFile) backups() []journalBackup {
	ext := filepath.Ext(w.path)
	prefix := strings.TrimSuffix(w.path, ext) + "-"
	matches, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil
	}
	var out []journalBackup
	for _, m := range matches {
		rest := strings.TrimPrefix(m, prefix)
		if len(rest) < len(backupStamp) {
			continue
		}
		at, err := time.ParseInLocation(backupStamp, rest[:len(backupStamp)], time.Local)
		if err != nil {
			continue
		}
		out = append(out, journalBackup{path: m, rotatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func (w *journalFile) prune(now time.Time) {
	backups := w.backups()
	cutoff := now.Add(-w.maxAge)
	for i, b := range backups {
		if len(backups)-i > w.maxBackups || b.rotatedAt.Before(cutoff) {
			_ = os.Remove(b.path)
		}
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
