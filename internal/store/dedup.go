package store

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Dedup is a TTL-bound LRU of event keys handled by this process.
type Dedup struct {
	lru *expirable.LRU[string, struct{}]
}

func NewDedup(maxKeys int, ttl time.Duration) *Dedup {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Dedup{lru: expirable.NewLRU[string, struct{}](maxKeys, nil, ttl)}
}

// Seen reports whether key was marked and has not expired.
func (d *Dedup) Seen(key string) bool {
	_, ok := d.lru.Get(key)
	return ok
}

// Mark records key, refreshing its TTL.
func (d *Dedup) Mark(key string) {
	d.lru.Add(key, struct{}{})
}

func (d *Dedup) Len() int { return d.lru.Len() }
