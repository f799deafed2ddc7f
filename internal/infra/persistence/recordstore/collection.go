// Package recordstore persists typed collections as JSON arrays in a blob bucket.
//
// Every collection lives in a single object, <name>.json. Each call reads the
// whole array, and each mutating call writes it back under the collection's
// mutex, so writers within a process never lose updates. Cross-process
// coordination is not provided.
package recordstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"athlo/internal/errors"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

var (
	// ErrNotFound is returned by Update and Modify when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned by CreateUnique when an existing record conflicts.
	ErrConflict = errors.New("record conflicts with an existing record")
)

// Document is implemented by the stored representation of an entity.
type Document[T any] interface {
	DocumentID() uuid.UUID

	// Touched returns a copy with its update timestamp set to at.
	Touched(at time.Time) T
}

// Collection is a persistent, ordered set of documents keyed by id.
type Collection[T Document[T]] struct {
	bucket *blob.Bucket
	key    string
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Collection.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp updates.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewCollection binds a collection named name to bucket.
func NewCollection[T Document[T]](bucket *blob.Bucket, name string, opts ...Option) *Collection[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Collection[T]{
		bucket: bucket,
		key:    name + ".json",
		now:    o.now,
	}
}

// Get returns the document with the id and whether it exists.
func (c *Collection[T]) Get(ctx context.Context, id uuid.UUID) (T, bool, error) {
	return c.FindOne(ctx, func(doc T) bool { return doc.DocumentID() == id })
}

// List returns every document in insertion order.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.load(ctx)
}

// FindBy returns every document the predicate accepts.
func (c *Collection[T]) FindBy(ctx context.Context, match func(T) bool) ([]T, error) {
	docs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]T, 0, len(docs))
	for _, doc := range docs {
		if match(doc) {
			matched = append(matched, doc)
		}
	}

	return matched, nil
}

// FindOne returns the first document the predicate accepts.
func (c *Collection[T]) FindOne(ctx context.Context, match func(T) bool) (T, bool, error) {
	var zero T

	docs, err := c.List(ctx)
	if err != nil {
		return zero, false, err
	}

	for _, doc := range docs {
		if match(doc) {
			return doc, true, nil
		}
	}

	return zero, false, nil
}

// Create appends doc as given. The caller supplies the id and timestamps.
func (c *Collection[T]) Create(ctx context.Context, doc T) (T, error) {
	return c.CreateUnique(ctx, doc, nil)
}

// CreateUnique appends doc unless an existing document satisfies conflicts.
// The check and the append happen under the same lock.
func (c *Collection[T]) CreateUnique(ctx context.Context, doc T, conflicts func(existing T) bool) (T, error) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.load(ctx)
	if err != nil {
		return zero, err
	}

	if conflicts != nil {
		for _, existing := range docs {
			if conflicts(existing) {
				return zero, ErrConflict
			}
		}
	}

	if err := c.save(ctx, append(docs, doc)); err != nil {
		return zero, err
	}

	return doc, nil
}

// Update replaces the document with the same id. The update timestamp is
// always set to the current time, whatever the caller put there.
func (c *Collection[T]) Update(ctx context.Context, doc T) (T, error) {
	id := doc.DocumentID()

	return c.Modify(ctx, func(existing T) bool { return existing.DocumentID() == id }, func(T) (T, error) {
		return doc, nil
	})
}

// Modify applies fn to the first document match accepts and stores the
// result. fn runs under the collection lock, so a read-check-write inside it
// is atomic with respect to other writers. An error from fn aborts the write.
func (c *Collection[T]) Modify(ctx context.Context, match func(T) bool, fn func(T) (T, error)) (T, error) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.load(ctx)
	if err != nil {
		return zero, err
	}

	for i, existing := range docs {
		if !match(existing) {
			continue
		}

		updated, err := fn(existing)
		if err != nil {
			return zero, err
		}
		updated = updated.Touched(c.now())
		docs[i] = updated

		if err := c.save(ctx, docs); err != nil {
			return zero, err
		}

		return updated, nil
	}

	return zero, ErrNotFound
}

// ModifyAll applies fn to every document match accepts. fn reports whether
// it changed the document; only changed documents are stamped. Returns the
// number of changed documents.
func (c *Collection[T]) ModifyAll(ctx context.Context, match func(T) bool, fn func(T) (T, bool)) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.load(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	now := c.now()
	for i, existing := range docs {
		if !match(existing) {
			continue
		}
		if updated, ok := fn(existing); ok {
			docs[i] = updated.Touched(now)
			changed++
		}
	}

	if changed == 0 {
		return 0, nil
	}

	if err := c.save(ctx, docs); err != nil {
		return 0, err
	}

	return changed, nil
}

// Delete removes the document with the id and reports whether it existed.
func (c *Collection[T]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.load(ctx)
	if err != nil {
		return false, err
	}

	for i, existing := range docs {
		if existing.DocumentID() != id {
			continue
		}

		remaining := append(docs[:i:i], docs[i+1:]...)
		if err := c.save(ctx, remaining); err != nil {
			return false, err
		}

		return true, nil
	}

	return false, nil
}

// load reads the collection, creating an empty one on first access.
// Callers must hold c.mu.
func (c *Collection[T]) load(ctx context.Context) ([]T, error) {
	data, err := c.bucket.ReadAll(ctx, c.key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		if err := c.save(ctx, []T{}); err != nil {
			return nil, err
		}

		return []T{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read collection %s", c.key)
	}

	var docs []T
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, errors.Wrapf(err, "decode collection %s", c.key)
	}
	if docs == nil {
		docs = []T{}
	}

	return docs, nil
}

// save writes the whole collection. Callers must hold c.mu.
func (c *Collection[T]) save(ctx context.Context, docs []T) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode collection %s", c.key)
	}

	if err := c.bucket.WriteAll(ctx, c.key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return errors.Wrapf(err, "write collection %s", c.key)
	}

	return nil
}
