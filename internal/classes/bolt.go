package classes

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var classBucket = []byte("Classes")

// BoltDirectory stores the class name as the raw value under the class id.
type BoltDirectory struct {
	db *bbolt.DB
}

func NewBoltDirectory(db *bbolt.DB) (*BoltDirectory, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(classBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("create class bucket: %w", err)
	}
	return &BoltDirectory{db: db}, nil
}

func (d *BoltDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	var name string
	found := false
	if err := d.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(classBucket).Get([]byte(classID)); v != nil {
			name = string(v)
			found = true
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("read class: %w", err)
	}
	if !found {
		return "", ErrClassNotFound
	}
	return name, nil
}

func (d *BoltDirectory) SetClassName(ctx context.Context, classID, name string) error {
	if err := d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(classBucket).Put([]byte(classID), []byte(name))
	}); err != nil {
		return fmt.Errorf("write class: %w", err)
	}
	return nil
}
