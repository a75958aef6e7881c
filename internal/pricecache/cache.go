// Package pricecache keeps marketplace prices on disk between builds so that
// only missing or stale releases are looked up again.
package pricecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/gofrs/flock"
)

const (
	// FormatVersion is the on-disk layout version. Files with another version are ignored.
	FormatVersion = 1

	// DefaultMaxAge is how long a fetched price stays fresh
	DefaultMaxAge = 7 * 24 * time.Hour

	// DefaultFileName is the cache file used when none is configured
	DefaultFileName = ".discogs_collection_cache.json"
)

// Entry is one cached price for a (release, currency) pair.
// LowestPrice nil with NumForSale 0 records a release that is not for sale.
type Entry struct {
	LowestPrice *float64 `json:"lowest_price"`
	NumForSale  *int     `json:"num_for_sale"`
	FetchedAt   float64  `json:"fetched_at"`
}

type releaseEntry struct {
	CachedAt float64           `json:"cached_at"`
	Prices   map[string]*Entry `json:"prices,omitempty"`
}

type fileData struct {
	Version       int                      `json:"version"`
	Username      string                   `json:"username"`
	Releases      map[string]*releaseEntry `json:"releases"`
	LastFullFetch *float64                 `json:"last_full_fetch"`
}

func emptyData(username string) fileData {
	return fileData{
		Version:  FormatVersion,
		Username: username,
		Releases: make(map[string]*releaseEntry),
	}
}

// Cache is a currency-keyed price cache backed by a JSON file.
// Mutations stay in memory until Persist is called.
type Cache struct {
	path   string
	maxAge time.Duration
	now    func() time.Time

	mu   sync.Mutex
	data fileData
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMaxAge overrides the staleness threshold
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// New opens the cache at path. A missing, unreadable or incompatible file
// yields an empty cache; the problem is logged, never returned.
func New(path string, opts ...Option) *Cache {
	if path == "" {
		path = DefaultFileName
	}
	c := &Cache{
		path:   path,
		maxAge: DefaultMaxAge,
		now:    time.Now,
		data:   emptyData(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Load(); err != nil {
		util.WarnLog("Price cache %s ignored: %v", path, err)
	}
	return c
}

// Path returns the cache file location
func (c *Cache) Path() string {
	return c.path
}

// Load replaces the in-memory state with the file contents.
// On any error the cache is left empty.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = emptyData("")

	raw, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	var loaded fileData
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("failed to parse cache: %w", err)
	}
	if loaded.Version != FormatVersion {
		return fmt.Errorf("unsupported cache version %d", loaded.Version)
	}
	if loaded.Releases == nil {
		loaded.Releases = make(map[string]*releaseEntry)
	}
	// null releases and prices from a hand-edited file are dropped
	for key, rel := range loaded.Releases {
		if rel == nil {
			delete(loaded.Releases, key)
			continue
		}
		for currency, e := range rel.Prices {
			if e == nil {
				delete(rel.Prices, currency)
			}
		}
	}
	c.data = loaded
	util.DebugLog("Price cache: loaded %d releases for %q", len(loaded.Releases), loaded.Username)
	return nil
}

// Persist writes the whole cache to a temp file and renames it into place
func (c *Cache) Persist() error {
	c.mu.Lock()
	raw, err := json.MarshalIndent(c.data, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache: %w", err)
	}
	return nil
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func releaseKey(id int) string {
	return strconv.Itoa(id)
}

// epochSeconds converts t to fractional Unix seconds without losing whole-second precision
func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func fromEpochSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func (c *Cache) isStale(e *Entry) bool {
	return epochSeconds(c.now())-e.FetchedAt > c.maxAge.Seconds()
}

// Get returns the cached price for a release. stale is true when the entry is
// missing or older than the staleness threshold; stale values are still returned.
func (c *Cache) Get(id int, currency string) (price *float64, numForSale *int, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rel := c.data.Releases[releaseKey(id)]
	if rel == nil {
		return nil, nil, true
	}
	e := rel.Prices[normalizeCurrency(currency)]
	if e == nil {
		return nil, nil, true
	}
	return copyFloat(e.LowestPrice), copyInt(e.NumForSale), c.isStale(e)
}

// Set stores a freshly fetched price
func (c *Cache) Set(id int, currency string, price *float64, numForSale *int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := epochSeconds(c.now())
	key := releaseKey(id)
	rel := c.data.Releases[key]
	if rel == nil {
		rel = &releaseEntry{CachedAt: now}
		c.data.Releases[key] = rel
	}
	if rel.Prices == nil {
		rel.Prices = make(map[string]*Entry)
	}
	rel.Prices[normalizeCurrency(currency)] = &Entry{
		LowestPrice: copyFloat(price),
		NumForSale:  copyInt(numForSale),
		FetchedAt:   now,
	}
}

// NeedsFetch returns the ids, in input order, whose price is missing or stale
func (c *Cache) NeedsFetch(ids []int, currency string) []int {
	var out []int
	for _, id := range ids {
		if _, _, stale := c.Get(id, currency); stale {
			out = append(out, id)
		}
	}
	return out
}

// Username returns the account the cached data belongs to
func (c *Cache) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Username
}

// SetActiveUser binds the cache to username, wiping it when the account changed.
// It reports whether cached data was discarded.
func (c *Cache) SetActiveUser(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data.Username == username {
		return false
	}
	discarded := len(c.data.Releases) > 0
	if discarded {
		util.InfoLog("Price cache belonged to %q, starting fresh for %q", c.data.Username, username)
	}
	c.data = emptyData(username)
	return discarded
}

// MarkFullFetch records the time of a complete collection pass
func (c *Cache) MarkFullFetch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := epochSeconds(c.now())
	c.data.LastFullFetch = &now
}

// Clear drops cached prices for one currency, or all prices when currency is empty.
// It returns the number of releases affected.
func (c *Cache) Clear(currency string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	currency = normalizeCurrency(currency)
	count := 0
	for _, rel := range c.data.Releases {
		if len(rel.Prices) == 0 {
			continue
		}
		if currency == "" {
			rel.Prices = nil
			count++
			continue
		}
		if _, ok := rel.Prices[currency]; ok {
			delete(rel.Prices, currency)
			count++
		}
	}
	return count
}

// Reset empties the cache, including the bound username
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = emptyData("")
}

// Stats summarizes the cache contents
type Stats struct {
	Username      string
	Releases      int
	Prices        int
	Stale         int
	NotForSale    int
	ByCurrency    map[string]int
	Oldest        time.Time
	Newest        time.Time
	LastFullFetch time.Time
}

// Stats reports entry counts and fetch times
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Username:   c.data.Username,
		Releases:   len(c.data.Releases),
		ByCurrency: make(map[string]int),
	}
	if c.data.LastFullFetch != nil {
		s.LastFullFetch = fromEpochSeconds(*c.data.LastFullFetch)
	}
	for _, rel := range c.data.Releases {
		for cur, e := range rel.Prices {
			s.Prices++
			s.ByCurrency[cur]++
			if c.isStale(e) {
				s.Stale++
			}
			if e.LowestPrice == nil && e.NumForSale != nil && *e.NumForSale == 0 {
				s.NotForSale++
			}
			fetched := fromEpochSeconds(e.FetchedAt)
			if s.Oldest.IsZero() || fetched.Before(s.Oldest) {
				s.Oldest = fetched
			}
			if fetched.After(s.Newest) {
				s.Newest = fetched
			}
		}
	}
	return s
}

// TryLock takes an advisory lock on <path>.lock so two builds never share the file.
// It returns util.ErrBuildInProgress when another process holds the lock.
func (c *Cache) TryLock() (unlock func() error, err error) {
	lock := flock.New(c.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cache lock: %w", err)
	}
	if !ok {
		return nil, util.ErrBuildInProgress
	}
	return lock.Unlock, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
