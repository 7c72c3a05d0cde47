package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by stores when a key has no entry.
var ErrMiss = errors.New("cache miss")

// Namespace groups entries that are invalidated together.
type Namespace string

const (
	NamespacePatients Namespace = "patients"
	NamespaceBurnout  Namespace = "burnout"
	NamespaceAdmin    Namespace = "admin"
)

// Key addresses one cached response. It renders as "namespace:operation:discriminator".
type Key struct {
	Namespace     Namespace
	Operation     string
	Discriminator string
}

func (k Key) String() string {
	return string(k.Namespace) + ":" + k.Operation + ":" + k.Discriminator
}

// Prefix returns the eviction prefix that covers every key of the namespace.
func (ns Namespace) Prefix() string {
	return string(ns) + ":"
}

// Store holds opaque response bodies. Implementations are safe for concurrent
// use; concurrent writers to one key are last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// DeletePrefix removes every key starting with prefix and reports how many went.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}
