// Package blob stores encrypted record payloads. Callers keep the opaque
// pointer a Put returns and hand it back to Get.
package blob

import (
	"context"
	"strings"

	dErrors "medblock/pkg/domain-errors"
)

type Store interface {
	Put(ctx context.Context, objectKey string, data []byte) (pointer string, err error)
	Get(ctx context.Context, pointer string) ([]byte, error)
	// Delete removes the object behind pointer. A missing object is not an
	// error.
	Delete(ctx context.Context, pointer string) error
}

var (
	ErrNotFound   = dErrors.New(dErrors.CodeNotFound, "blob not found")
	ErrBadPointer = dErrors.New(dErrors.CodeBadRequest, "malformed storage pointer")
)

// parsePointer splits scheme://bucket/key.
func parsePointer(pointer, scheme string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(pointer, scheme+"://")
	if !ok {
		return "", "", ErrBadPointer
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", ErrBadPointer
	}
	return bucket, key, nil
}
