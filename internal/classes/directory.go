package classes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gradebook/internal/cache"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/singleflight"
)

var (
	ErrClassNotFound     = errors.New("class not found")
	ErrClassNameRequired = errors.New("class name is required")
)

// Directory resolves class ids to display names and lets admins rename them.
type Directory interface {
	ClassName(ctx context.Context, classID string) (string, error)
	SetClassName(ctx context.Context, classID, name string) error
}

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	var name string
	if err := d.db.QueryRowContext(ctx, `
		SELECT name
		FROM classes
		WHERE id = $1
	`, classID).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrClassNotFound
		}
		return "", fmt.Errorf("query class name: %w", err)
	}
	return name, nil
}

func (d *PostgresDirectory) SetClassName(ctx context.Context, classID, name string) error {
	if _, err := d.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = now()
	`, classID, name); err != nil {
		return fmt.Errorf("upsert class: %w", err)
	}
	return nil
}

type MongoDirectory struct {
	col *mongo.Collection
}

func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{col: db.Collection("classes")}
}

func (d *MongoDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	var doc struct {
		Name string `bson:"name"`
	}
	err := d.col.FindOne(ctx, bson.M{"_id": classID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrClassNotFound
		}
		return "", fmt.Errorf("find class: %w", err)
	}
	return doc.Name, nil
}

func (d *MongoDirectory) SetClassName(ctx context.Context, classID, name string) error {
	_, err := d.col.UpdateOne(ctx,
		bson.M{"_id": classID},
		bson.M{"$set": bson.M{"name": name, "updatedAt": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert class: %w", err)
	}
	return nil
}

// CachedDirectory fronts a Directory with a TTL cache. Concurrent misses for
// the same class share one lookup. Renames through it invalidate the entry,
// and a lookup that started before an invalidation does not repopulate it.
type CachedDirectory struct {
	next  Directory
	cache *cache.TTL[string]
	ttl   time.Duration
	group singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64
}

func NewCachedDirectory(next Directory, c *cache.TTL[string], ttl time.Duration) *CachedDirectory {
	if c == nil {
		c = cache.New[string]()
	}
	return &CachedDirectory{next: next, cache: c, ttl: ttl, gens: make(map[string]uint64)}
}

func (d *CachedDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	if name, ok := d.cache.Get(classID, d.ttl); ok {
		return name, nil
	}
	v, err, _ := d.group.Do(classID, func() (interface{}, error) {
		gen := d.generation(classID)
		// Shared by every waiter on classID, so one caller's cancellation
		// must not fail the others.
		name, err := d.next.ClassName(context.WithoutCancel(ctx), classID)
		if err != nil {
			return "", err
		}
		d.storeIfCurrent(classID, gen, name)
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *CachedDirectory) SetClassName(ctx context.Context, classID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrClassNameRequired
	}
	if err := d.next.SetClassName(ctx, classID, name); err != nil {
		return err
	}
	d.Invalidate(classID)
	return nil
}

func (d *CachedDirectory) Invalidate(classID string) {
	d.mu.Lock()
	d.gens[classID]++
	d.cache.Invalidate(classID)
	d.mu.Unlock()
	d.group.Forget(classID)
}

func (d *CachedDirectory) generation(classID string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[classID]
}

func (d *CachedDirectory) storeIfCurrent(classID string, gen uint64, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gens[classID] != gen {
		return
	}
	d.cache.Set(classID, name)
}
