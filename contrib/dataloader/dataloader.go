// Package dataloader holds the batching helpers behind the relation loader
// of package model. A batch load collects the keys of many parents, runs
// one query and hands every parent its share:
//
//	ids := dataloader.Distinct(fks, model.KeyString)
//	posts, _ := q.WhereIn("user_id", ids...).Get(ctx)
//	perUser := dataloader.Gather(userKeys, dataloader.Buckets(posts, authorKey))
package dataloader

import "context"

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// Distinct returns values with repeated keys removed, keeping the first
// value of every key.
func Distinct[K comparable, V any](values []V, keyFn KeyFunc[K, V]) []V {
	seen := make(map[K]struct{}, len(values))
	out := make([]V, 0, len(values))
	for _, v := range values {
		k := keyFn(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Match returns the value for each key, in key order. found[i] reports
// whether keys[i] had a value; when several values share a key the last
// one wins.
func Match[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) (matched []V, found []bool) {
	index := make(map[K]V, len(values))
	for _, v := range values {
		index[keyFn(v)] = v
	}
	matched = make([]V, len(keys))
	found = make([]bool, len(keys))
	for i, k := range keys {
		matched[i], found[i] = index[k]
	}
	return matched, found
}

// Buckets groups values by key, keeping their relative order.
func Buckets[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	out := make(map[K][]V)
	for _, v := range values {
		k := keyFn(v)
		out[k] = append(out[k], v)
	}
	return out
}

// Gather returns the bucket of each key, in key order. Keys without a
// bucket get nil.
func Gather[K comparable, V any](keys []K, buckets map[K][]V) [][]V {
	out := make([][]V, len(keys))
	for i, k := range keys {
		out[i] = buckets[k]
	}
	return out
}

// Cache stores loaded values by key.
type Cache[K comparable, T any] interface {
	Prime(key K, value T)
	Clear(key K)
}

// PrimeAll stores the value of every item under its key.
func PrimeAll[K comparable, V, T any](c Cache[K, T], items []V, key func(V) K, value func(V) T) {
	for _, it := range items {
		c.Prime(key(it), value(it))
	}
}

// ClearAll clears every key.
func ClearAll[K comparable, T any](c Cache[K, T], keys []K) {
	for _, k := range keys {
		c.Clear(k)
	}
}

type ctxKey struct{}

// NewContext returns a context carrying a request's loaders.
func NewContext[T any](ctx context.Context, loaders T) context.Context {
	return context.WithValue(ctx, ctxKey{}, loaders)
}

// FromContext returns the loaders stored in ctx.
func FromContext[T any](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(ctxKey{}).(T)
	return v, ok
}
