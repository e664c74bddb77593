// Package objstore reads raw artifacts from the landing zone and writes
// quarantine records. Two backends share the partition layout: a local
// directory tree for development and Google Cloud Storage for deployment.
package objstore

import (
	"context"
	"errors"
	"path"
	"sort"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// ErrExists is returned by Create when the object is already present.
var ErrExists = errors.New("object already exists")

// ErrNotFound is returned by Read for a missing object.
var ErrNotFound = errors.New("object not found")

// Store is the operation set both backends implement.
type Store interface {
	List(ctx context.Context, p domain.PartitionKey) ([]domain.RawArtifactRef, error)
	Read(ctx context.Context, name string) ([]byte, error)
	// Put writes or replaces name.
	Put(ctx context.Context, name string, data []byte) error
	// Create writes name only if it does not exist yet.
	Create(ctx context.Context, name string, data []byte) error
}

// ArtifactName joins a partition prefix and a base file name.
func ArtifactName(p domain.PartitionKey, base string) string {
	return path.Join(p.String(), base)
}

// toRef keeps only objects whose kind can be inferred from the name.
func toRef(p domain.PartitionKey, name string, size int64) (domain.RawArtifactRef, bool) {
	kind, ok := domain.KindFromArtifactName(name)
	if !ok {
		return domain.RawArtifactRef{}, false
	}
	return domain.RawArtifactRef{Partition: p, Name: name, SizeBytes: size, Kind: kind}, true
}

func sortRefs(refs []domain.RawArtifactRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
}
