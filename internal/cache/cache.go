package cache

// Cache is a bounded key/value cache. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(key interface{}) (interface{}, bool)
	Add(key, value interface{})
	Keys() []interface{}
	Delete(key interface{})
	Len() int
}
