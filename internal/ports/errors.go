package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrObjectNotFound indicates that a storage path has no object.
	ErrObjectNotFound = errors.New("object not found")

	// ErrCacheMiss indicates that a cache key holds no value.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheCorrupted indicates that cached data is corrupted or invalid.
	ErrCacheCorrupted = errors.New("cache corrupted")

	// ErrUnsupportedFormat indicates that no extraction backend accepts the file.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrDispatchRejected indicates that the workflow engine refused a payload.
	ErrDispatchRejected = errors.New("dispatch rejected")
)

// CacheError represents an error from cache operations.
// It includes the key and operation that failed.
type CacheError struct {
	// Key is the cache key that was involved in the failed operation.
	Key string

	// Operation is the name of the cache operation that failed.
	Operation string

	// Err is the underlying error that caused the cache operation to fail.
	Err error
}

// Error implements the error interface for CacheError.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError creates a new CacheError with the given details.
func NewCacheError(key, operation string, err error) *CacheError {
	return &CacheError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// ObjectStoreError represents a failed object download.
type ObjectStoreError struct {
	// Path is the storage path that was requested.
	Path string

	// Backend names the storage implementation, e.g. gcs or filesystem.
	Backend string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ObjectStoreError.
func (e *ObjectStoreError) Error() string {
	return fmt.Sprintf("object store error: backend=%s, path=%s, err=%v", e.Backend, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ObjectStoreError) Unwrap() error { return e.Err }

// NewObjectStoreError creates a new ObjectStoreError with the given details.
func NewObjectStoreError(backend, path string, err error) *ObjectStoreError {
	return &ObjectStoreError{
		Path:    path,
		Backend: backend,
		Err:     err,
	}
}

// DispatchError represents a failed delegation hand-off.
type DispatchError struct {
	// Target is the webhook URL or Kafka topic.
	Target string

	// StatusCode is the HTTP status for webhook targets, zero otherwise.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for DispatchError.
func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("dispatch error: target=%s, status=%d, err=%v", e.Target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dispatch error: target=%s, err=%v", e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error { return e.Err }
