// Copyright (c) The Thanos Community Authors.
// Licensed under the Apache License 2.0.

package store

import (
	"encoding/binary"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"
	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/thanos-community/hdbcomp/pkg/series"
)

var tsidPrefix = []byte("tsid/")

// Cache keeps resolved time series identifiers across runs. Identifiers never change once created,
// so entries do not expire.
type Cache struct {
	logger log.Logger
	db     *badger.DB
}

func NewCache(logger log.Logger, cfg series.CacheConfig) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required unless in_memory is set")
	}
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open cache")
	}
	return &Cache{logger: logger, db: db}, nil
}

func tsidKey(key int64) []byte {
	k := make([]byte, len(tsidPrefix)+8)
	copy(k, tsidPrefix)
	binary.BigEndian.PutUint64(k[len(tsidPrefix):], uint64(key))
	return k
}

// Get returns the cached identifier for a cp_ts_id key.
func (c *Cache) Get(key int64) (series.TSID, bool) {
	var id series.TSID
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tsidKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &id)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			level.Warn(c.logger).Log("msg", "reading time series identifier cache failed", "ts_id", key, "err", err)
		}
		return series.TSID{}, false
	}
	return id, true
}

// Put stores id. Failures are logged, the cache is best effort.
func (c *Cache) Put(id series.TSID) {
	b, err := json.Marshal(id)
	if err != nil {
		level.Warn(c.logger).Log("msg", "encoding time series identifier failed", "ts_id", id.Key, "err", err)
		return
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tsidKey(id.Key), b)
	}); err != nil {
		level.Warn(c.logger).Log("msg", "writing time series identifier cache failed", "ts_id", id.Key, "err", err)
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
