// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/timshannon/badgerhold/v4"
)

// Cache keeps the last fetched history on disk for offline listing
type Cache struct {
	store *badgerhold.Store
}

// OpenCache opens the cache under dir, or an in-memory cache when dir is empty
func OpenCache(dir string) (*Cache, error) {
	options := badgerhold.DefaultOptions
	if dir == "" {
		options.Options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history cache directory: %w", err)
		}
		options.Options = badger.DefaultOptions(dir)
	}
	// badger logs to stderr by default
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open history cache: %w", err)
	}
	return &Cache{store: store}, nil
}

// Close releases the database
func (c *Cache) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Replace swaps the cached history for items, stamping each with fetchedAt
// and its position
func (c *Cache) Replace(items []models.HistoryItem, fetchedAt time.Time) error {
	if err := c.store.DeleteMatching(&models.HistoryItem{}, nil); err != nil {
		return fmt.Errorf("failed to clear history cache: %w", err)
	}
	for i := range items {
		item := items[i]
		if item.ID == "" {
			item.ID = fmt.Sprintf("%s#%d", item.RepoName, i)
		}
		item.FetchedAt = fetchedAt
		item.Rank = i
		if err := c.store.Upsert(item.ID, &item); err != nil {
			return fmt.Errorf("failed to cache history item %s: %w", item.ID, err)
		}
	}
	return nil
}

// All returns the cached history in the order it was fetched
func (c *Cache) All() ([]models.HistoryItem, error) {
	var items []models.HistoryItem
	if err := c.store.Find(&items, nil); err != nil {
		return nil, fmt.Errorf("failed to read history cache: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Rank < items[j].Rank })
	return items, nil
}

// ForRepo returns the cached history of one repository
func (c *Cache) ForRepo(repoName string) ([]models.HistoryItem, error) {
	var items []models.HistoryItem
	query := badgerhold.Where("RepoName").Eq(repoName).Index("RepoName")
	if err := c.store.Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to read history cache: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Rank < items[j].Rank })
	return items, nil
}
