package cache

// Store is the cache surface used by the fetcher and the pipeline.
type Store interface {
	Get(ns Namespace, url, discriminator string) (string, bool)
	Put(ns Namespace, url, data, discriminator string)
}

var _ Store = (*FileCache)(nil)
