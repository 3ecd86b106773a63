package artifact

import (
	"context"
	"io"
	"os"

	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// GCSFetcher fetches objects from Google Cloud Storage via the generic
// google.golang.org/api/storage/v1 REST client, the same API-client
// family the teacher already depends on elsewhere (no need for the
// separate cloud.google.com/go/storage client the teacher's own go.mod
// never actually listed).
type GCSFetcher struct {
	svc *storagev1.Service
}

// NewGCSFetcher builds a GCSFetcher, optionally threading in explicit
// client options (credentials, endpoint override) for tests.
func NewGCSFetcher(ctx context.Context, opts ...option.ClientOption) (*GCSFetcher, error) {
	svc, err := storagev1.NewService(ctx, opts...)
	if err != nil {
		return nil, calerr.Wrap(calerr.RecipeInvalid, "artifact.NewGCSFetcher", err)
	}
	return &GCSFetcher{svc: svc}, nil
}

func (f *GCSFetcher) Provider() Provider { return ProviderGCS }

func (f *GCSFetcher) Fetch(ctx context.Context, uri string, destPath string) error {
	_, bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}

	resp, err := f.svc.Objects.Get(bucket, key).Context(ctx).Download()
	if err != nil {
		return calerr.New(calerr.RecipeInvalid, "artifact.GCSFetcher.Fetch", uri, err)
	}
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return calerr.Wrap(calerr.RecipeInvalid, "artifact.GCSFetcher.Fetch", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return calerr.Wrap(calerr.RecipeInvalid, "artifact.GCSFetcher.Fetch", err)
	}
	return nil
}
