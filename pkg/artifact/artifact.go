// Package artifact fetches build-time artifacts (presently, a configured
// cloud_sql_proxy binary) referenced by a project's build config from
// object storage into a local path for BuildPlanner to bake into a layer.
//
// The shape is grounded on the teacher's pluggable storage registry
// (storage.Provider enum + storage.Storage interface + DefaultFactory),
// narrowed to the one operation Caliban actually needs.
package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// Provider identifies which object-storage scheme an artifact URI uses.
type Provider string

const (
	ProviderGCS Provider = "gcs"
	ProviderS3  Provider = "s3"
)

// Fetcher downloads a single object named by uri into destPath.
type Fetcher interface {
	Provider() Provider
	Fetch(ctx context.Context, uri string, destPath string) error
}

// ParseURI splits an "scheme://bucket/key" artifact URI into its provider,
// bucket, and key.
func ParseURI(uri string) (provider Provider, bucket, key string, err error) {
	switch {
	case strings.HasPrefix(uri, "gs://"):
		provider = ProviderGCS
		uri = strings.TrimPrefix(uri, "gs://")
	case strings.HasPrefix(uri, "s3://"):
		provider = ProviderS3
		uri = strings.TrimPrefix(uri, "s3://")
	default:
		return "", "", "", calerr.New(calerr.ConfigInvalid, "artifact.ParseURI",
			fmt.Sprintf("unrecognized artifact URI scheme: %q", uri), nil)
	}

	parts := strings.SplitN(uri, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", calerr.New(calerr.ConfigInvalid, "artifact.ParseURI",
			fmt.Sprintf("artifact URI %q must be scheme://bucket/key", uri), nil)
	}
	return provider, parts[0], parts[1], nil
}

// Registry selects a Fetcher by Provider, mirroring the teacher's
// DefaultFactory provider lookup.
type Registry struct {
	fetchers map[Provider]Fetcher
}

// NewRegistry builds a Registry with the given fetchers keyed by their own
// Provider().
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[Provider]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		r.fetchers[f.Provider()] = f
	}
	return r
}

// Fetch resolves uri's provider and delegates to the matching Fetcher.
func (r *Registry) Fetch(ctx context.Context, uri string, destPath string) error {
	provider, _, _, err := ParseURI(uri)
	if err != nil {
		return err
	}
	f, ok := r.fetchers[provider]
	if !ok {
		return calerr.New(calerr.ConfigInvalid, "artifact.Fetch",
			fmt.Sprintf("no fetcher registered for provider %q", provider), nil)
	}
	return f.Fetch(ctx, uri, destPath)
}
