package archive

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"automag/internal/domain"
)

const keyPrefix = "raw:"

// Badger хранит сырые ответы модели на диске по URL статьи.
type Badger struct {
	db *badger.DB
}

// Open открывает архив в каталоге dir.
func Open(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("archive: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// New оборачивает уже открытую базу.
func New(db *badger.DB) *Badger {
	return &Badger{db: db}
}

// Put сохраняет ответ, перезаписывая прежний для того же URL.
func (b *Badger) Put(url string, raw []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+url), raw)
	})
	if err != nil {
		return fmt.Errorf("archive: put: %w", err)
	}
	return nil
}

// Get возвращает сохранённый ответ или domain.ErrNotFound.
func (b *Badger) Get(url string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + url))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("archive: %s: %w", url, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get: %w", err)
	}
	return out, nil
}

// Close закрывает базу.
func (b *Badger) Close() error {
	return b.db.Close()
}
