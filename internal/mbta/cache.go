package mbta

import (
	"os"
	"path/filepath"
	"time"
)

// Cache stores one raw alert-feed response per calendar day. Repeated
// display-mode runs on the same day reuse the file instead of hitting the
// API; the file for a new day simply shadows yesterday's.
type Cache struct {
	dir string
	now func() time.Time
}

// NewCache creates a dated cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir, now: time.Now}
}

func (c *Cache) todayPath() string {
	name := "alerts-" + c.now().Format(time.DateOnly) + ".json"
	return filepath.Join(c.dir, name)
}

// ReadToday returns today's cached response, if one exists.
func (c *Cache) ReadToday() ([]byte, bool) {
	body, err := os.ReadFile(c.todayPath())
	if err != nil || len(body) == 0 {
		return nil, false
	}
	return body, true
}

// WriteToday stores body as today's response, atomically (temp + rename)
// so a killed run never leaves a truncated cache file behind.
func (c *Cache) WriteToday(body []byte) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, ".alerts-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, c.todayPath())
}
