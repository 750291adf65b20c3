package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

type LogCache struct {
	dir     string
	maxSize int64         // max total cache size in bytes
	ttl     time.Duration // cache entry TTL
	now     func() time.Time
}

// JobMeta stores metadata about a cached job log.
type JobMeta struct {
	JobID      int64     `json:"job_id"`
	RunID      int64     `json:"run_id"`
	Repo       string    `json:"repo"`
	Name       string    `json:"name"`
	Conclusion string    `json:"conclusion"`
	StoredAt   time.Time `json:"stored_at"`
}

// CacheEntry is a cached job log with computed fields.
type CacheEntry struct {
	JobMeta
	Size     int64
	Modified time.Time
	Path     string
}

func NewLogCache(dir string, maxSizeMB int, ttl time.Duration) (*LogCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log cache dir: %w", err)
	}
	return &LogCache{
		dir:     dir,
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

func (lc *LogCache) Dir() string {
	return lc.dir
}

func (lc *LogCache) logPath(jobID int64) string {
	return filepath.Join(lc.dir, fmt.Sprintf("job-%d.log", jobID))
}

func (lc *LogCache) metaPath(jobID int64) string {
	return filepath.Join(lc.dir, fmt.Sprintf("job-%d.json", jobID))
}

// HasJob reports whether a fresh log for jobID is cached.
func (lc *LogCache) HasJob(jobID int64) bool {
	info, err := os.Stat(lc.logPath(jobID))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && lc.now().Sub(info.ModTime()) < lc.ttl
}

// StoreJobLog copies r into the cache and returns the cached file's path.
// The file appears atomically so a concurrent reader never sees a partial log.
func (lc *LogCache) StoreJobLog(jobID int64, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(lc.dir, fmt.Sprintf("job-%d-*.tmp", jobID))
	if err != nil {
		return "", fmt.Errorf("create temp log: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write job %d log: %w", jobID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	path := lc.logPath(jobID)
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store job %d log: %w", jobID, err)
	}
	return path, nil
}

func (lc *LogCache) ReadJobLog(jobID int64) (string, error) {
	data, err := os.ReadFile(lc.logPath(jobID))
	if err != nil {
		return "", fmt.Errorf("read cached job %d log: %w", jobID, err)
	}
	return string(data), nil
}

// WriteMeta writes the metadata file next to a job's log.
func (lc *LogCache) WriteMeta(meta JobMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(lc.metaPath(meta.JobID), data, 0o644)
}

func (lc *LogCache) ReadMeta(jobID int64) (*JobMeta, error) {
	data, err := os.ReadFile(lc.metaPath(jobID))
	if err != nil {
		return nil, err
	}
	var meta JobMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListEntries returns every cached job log, oldest first.
func (lc *LogCache) ListEntries() ([]CacheEntry, error) {
	entries, err := os.ReadDir(lc.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var result []CacheEntry
	for _, e := range entries {
		jobID, ok := parseLogName(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		entry := CacheEntry{
			Path:     filepath.Join(lc.dir, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		}
		if meta, err := lc.ReadMeta(jobID); err == nil {
			entry.JobMeta = *meta
		} else {
			entry.JobID = jobID
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Modified.Before(result[j].Modified)
	})
	return result, nil
}

// parseLogName extracts the job id from a "job-<id>.log" file name.
func parseLogName(name string) (int64, bool) {
	if !strings.HasPrefix(name, "job-") || !strings.HasSuffix(name, ".log") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "job-"), ".log"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DeleteEntry removes a job's log and metadata.
func (lc *LogCache) DeleteEntry(jobID int64) error {
	if err := os.Remove(lc.logPath(jobID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(lc.metaPath(jobID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteAll removes all cache entries.
func (lc *LogCache) DeleteAll() error {
	entries, err := lc.ListEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := lc.DeleteEntry(e.JobID); err != nil {
			return err
		}
	}
	return nil
}

// Evict removes expired entries, then the oldest ones until the cache fits
// its size cap.
func (lc *LogCache) Evict() error {
	entries, err := lc.ListEntries()
	if err != nil {
		return err
	}

	var totalSize int64
	now := lc.now()
	remaining := entries[:0]
	for _, e := range entries {
		if now.Sub(e.Modified) > lc.ttl {
			lc.DeleteEntry(e.JobID)
			continue
		}
		remaining = append(remaining, e)
		totalSize += e.Size
	}

	for _, e := range remaining {
		if totalSize <= lc.maxSize {
			break
		}
		lc.DeleteEntry(e.JobID)
		totalSize -= e.Size
	}
	return nil
}

// TotalSize returns the size of all cached logs in bytes.
func (lc *LogCache) TotalSize() (int64, error) {
	entries, err := lc.ListEntries()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}
