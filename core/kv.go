package core

// KVStore is synchronous, device-scoped key/value durability. Reads cannot
// fail; writes only fail on storage exhaustion, which callers treat as
// fatal (no defined recovery).
type KVStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
	Clear() error
}
