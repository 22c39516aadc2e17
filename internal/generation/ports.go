package generation

import (
	"context"
	"io"

	"menu3d/internal/providers/mesh"
)

// MeshProvider is the external image-to-3D dependency.
type MeshProvider interface {
	HasCredentials() bool
	Model() string
	GenerateMesh(ctx context.Context, req mesh.MeshRequest) (*mesh.MeshResult, error)
}

// ObjectStore is the durable file storage used for input images and models.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	WriteStream(ctx context.Context, key string, r io.Reader, limit int64) (string, int64, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Remove(key string) error
	PublicURL(key string) string
	KeyFromURL(url string) (string, bool)
}
