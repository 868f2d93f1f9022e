// Package cache define el cache TTL usado para snapshots de sesión y
// códigos de email. Backends: memoria (un proceso) o Redis (compartido
// entre réplicas).
package cache

import "time"

type Cache interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}
