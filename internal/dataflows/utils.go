package dataflows

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotCached is returned in offline mode when no cached copy exists.
var ErrNotCached = errors.New("no cached data available offline")

// CacheManager handles file-based caching for data
type CacheManager struct {
	cacheDir     string
	ttl          time.Duration
	cacheEnabled bool
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string, ttl time.Duration, cacheEnabled bool) *CacheManager {
	return &CacheManager{
		cacheDir:     cacheDir,
		ttl:          ttl,
		cacheEnabled: cacheEnabled,
	}
}

func (cm *CacheManager) getCacheKey(source, method string, params any) string {
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return fmt.Sprintf("%s_%s_%x.json", source, method, hash)
}

// Get retrieves data from cache if not expired. With ignoreTTL set, any
// cached copy is returned; offline reads use that.
func (cm *CacheManager) Get(source, method string, params, result any, ignoreTTL bool) bool {
	if !cm.cacheEnabled && !ignoreTTL {
		return false
	}

	filePath := filepath.Join(cm.cacheDir, cm.getCacheKey(source, method, params))
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	if !ignoreTTL && time.Since(info.ModTime()) > cm.ttl {
		_ = os.Remove(filePath)
		return false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, result) == nil
}

// Set stores data in cache
func (cm *CacheManager) Set(source, method string, params, data any) error {
	if !cm.cacheEnabled {
		return nil
	}
	return SaveDataToFile(data, filepath.Join(cm.cacheDir, cm.getCacheKey(source, method, params)))
}

// fetch serves a cached copy when possible, otherwise calls load with retry
// and caches the result. Offline mode never calls load.
func fetch[T any](ctx context.Context, cm *CacheManager, offline bool, source, method string, params any, load func() (T, error)) (T, error) {
	var out T
	if cm.Get(source, method, params, &out, offline) {
		return out, nil
	}
	if offline {
		return out, fmt.Errorf("%s %s: %w", source, method, ErrNotCached)
	}

	err := withRetry(ctx, func() error {
		v, err := load()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return out, err
	}
	_ = cm.Set(source, method, params, out)
	return out, nil
}

// withRetry executes fn with exponential backoff, giving up after three
// retries or when ctx ends.
func withRetry(ctx context.Context, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 30 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, 3), ctx)
	if err := backoff.Retry(fn, b); err != nil {
		return fmt.Errorf("max retries exceeded: %w", err)
	}
	return nil
}

// permanent marks an error that retrying cannot fix.
func permanent(err error) error {
	return backoff.Permanent(err)
}

// ValidateSymbol checks if a stock symbol is valid format
func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 12 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	return nil
}

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// ParseDateString parses common date formats
func ParseDateString(dateStr string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"01/02/2006",
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// SaveDataToFile saves structured data to a JSON file
func SaveDataToFile(data any, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, jsonData, 0o644)
}

// LoadDataFromFile loads structured data from a JSON file
func LoadDataFromFile(filePath string, result any) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}
