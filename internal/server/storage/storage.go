// Package storage provides the object-storage collaborator: deterministic
// storage-key derivation for file nodes and an S3-backed client producing
// time-limited presigned URLs and idempotent object deletion.
package storage

import "context"

// Client is the blob-store capability consumed by the services layer.
type Client interface {
	// PresignPut returns a time-limited URL the caller can PUT bytes to.
	PresignPut(ctx context.Context, key string, contentType string) (string, error)
	// PresignGet returns a time-limited download URL. downloadName is used
	// as the attachment filename in the content disposition.
	PresignGet(ctx context.Context, key string, downloadName string) (string, error)
	// Delete removes the object. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
