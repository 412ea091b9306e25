package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const badgerDirname = "badger"

var (
	embeddingPrefix = []byte("e:")
	metaPrefix      = []byte("m:")
)

var (
	_ Store     = (*BadgerStore)(nil)
	_ MetaStore = (*BadgerStore)(nil)
)

type BadgerStore struct {
	db *badger.DB
}

type badgerRecord struct {
	Model     string `msgpack:"m"`
	Dimension int    `msgpack:"d"`
	Vector    []byte `msgpack:"v"`
	UpdatedAt int64  `msgpack:"t"`
}

func NewBadgerStore(basePath string) (*BadgerStore, error) {
	dir := filepath.Join(basePath, badgerDirname)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

func embeddingKey(id PhotoID) []byte {
	key := make([]byte, 0, len(embeddingPrefix)+len(id))
	key = append(key, embeddingPrefix...)
	return append(key, id...)
}

func (s *BadgerStore) Get(ctx context.Context, id PhotoID) (*Record, error) {
	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(embeddingKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = decodeBadgerRecord(id, val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

func (s *BadgerStore) GetAll(ctx context.Context) ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = embeddingPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := PhotoID(item.Key()[len(embeddingPrefix):])
			err := item.Value(func(val []byte) error {
				rec, err := decodeBadgerRecord(id, val)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if errors.Is(err, errCorruptRecord) {
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	return records, nil
}

func (s *BadgerStore) Keys(ctx context.Context) ([]PhotoID, error) {
	var ids []PhotoID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = embeddingPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, PhotoID(it.Item().Key()[len(embeddingPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	return ids, nil
}

func (s *BadgerStore) Put(ctx context.Context, rec *Record) error {
	val, err := msgpack.Marshal(&badgerRecord{
		Model:     rec.Model,
		Dimension: rec.Vector.Dimension(),
		Vector:    rec.Vector.Bytes(),
		UpdatedAt: rec.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(embeddingKey(rec.ID), val)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.ID, err)
	}
	return nil
}

func (s *BadgerStore) DeleteMany(ctx context.Context, ids []PhotoID) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, id := range ids {
		if err := wb.Delete(embeddingKey(id)); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush deletes: %w", err)
	}
	return nil
}

func (s *BadgerStore) Clear(ctx context.Context) error {
	if err := s.db.DropPrefix(embeddingPrefix); err != nil {
		return fmt.Errorf("drop embeddings: %w", err)
	}
	return nil
}

func (s *BadgerStore) Sync(ctx context.Context) error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("sync badger: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) SetMeta(ctx context.Context, key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(slices.Clone(metaPrefix), key...), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Meta(ctx context.Context) (map[string]string, error) {
	meta := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = metaPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			meta[string(item.Key()[len(metaPrefix):])] = string(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	return meta, nil
}

func decodeBadgerRecord(id PhotoID, val []byte) (*Record, error) {
	var br badgerRecord
	if err := msgpack.Unmarshal(val, &br); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errCorruptRecord, id, err)
	}
	vec, err := EmbeddingFromBytes(br.Vector)
	if err != nil || len(vec) != br.Dimension {
		return nil, fmt.Errorf("%w: %s", errCorruptRecord, id)
	}
	return &Record{
		ID:        id,
		Vector:    vec,
		Model:     br.Model,
		UpdatedAt: time.Unix(0, br.UpdatedAt).UTC(),
	}, nil
}
