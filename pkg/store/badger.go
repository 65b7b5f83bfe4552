// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// pageSize is the unit the image is stored in. Each page is one key.
const pageSize = 64

// Config holds configuration for a BadgerDB-backed store
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string
	// InMemory keeps the database in RAM only. Useful for testing.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Size is the capacity of the image in bytes.
	Size int
	// Logger receives BadgerDB's own log output. Nil disables it.
	Logger *zap.Logger
}

// DefaultConfig returns a durable configuration at path
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		Size:       DefaultSize,
	}
}

// InMemoryConfig returns configuration for tests
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		Size:     DefaultSize,
	}
}

// badgerLogger adapts zap to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Infof(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// Badger is a Store persisted in BadgerDB
type Badger struct {
	db   *badger.DB
	size int
}

// Open opens (or creates) a BadgerDB-backed store
func Open(cfg Config) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &Badger{db: db, size: cfg.Size}, nil
}

// Close closes the database
func (b *Badger) Close() error {
	return b.db.Close()
}

// Size implements Sized
func (b *Badger) Size() int {
	return b.size
}

func pageKey(page int) []byte {
	return []byte(fmt.Sprintf("image/%06x", page))
}

// readPage returns a page, zero-filled if it was never written
func readPage(txn *badger.Txn, page int) ([]byte, error) {
	buf := make([]byte, pageSize)
	item, err := txn.Get(pageKey(page))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return buf, nil
	}
	if err != nil {
		return nil, err
	}
	err = item.Value(func(val []byte) error {
		copy(buf, val)
		return nil
	})
	return buf, err
}

// Get implements Store
func (b *Badger) Get(offset, length int) ([]byte, error) {
	if err := checkRange(offset, length, b.size); err != nil {
		return nil, err
	}

	out := make([]byte, 0, length)
	err := b.db.View(func(txn *badger.Txn) error {
		for pos := offset; pos < offset+length; {
			page, within := pos/pageSize, pos%pageSize
			buf, err := readPage(txn, page)
			if err != nil {
				return err
			}
			n := min(pageSize-within, offset+length-pos)
			out = append(out, buf[within:within+n]...)
			pos += n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	return out, nil
}

// Put implements Store. All touched pages are written in one transaction.
func (b *Badger) Put(offset int, data []byte) error {
	if err := checkRange(offset, len(data), b.size); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		for pos, src := offset, data; len(src) > 0; {
			page, within := pos/pageSize, pos%pageSize
			buf, err := readPage(txn, page)
			if err != nil {
				return err
			}
			n := copy(buf[within:], src)
			if err := txn.Set(pageKey(page), buf); err != nil {
				return err
			}
			pos += n
			src = src[n:]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}
