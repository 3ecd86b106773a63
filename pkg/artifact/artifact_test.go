package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	provider, bucket, key, err := ParseURI("gs://my-bucket/path/to/proxy")
	require.NoError(t, err)
	assert.Equal(t, ProviderGCS, provider)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/proxy", key)

	provider, bucket, key, err = ParseURI("s3://other-bucket/proxy")
	require.NoError(t, err)
	assert.Equal(t, ProviderS3, provider)
	assert.Equal(t, "other-bucket", bucket)
	assert.Equal(t, "proxy", key)
}

func TestParseURI_RejectsUnknownScheme(t *testing.T) {
	_, _, _, err := ParseURI("azure://bucket/key")
	require.Error(t, err)
}

func TestParseURI_RejectsMissingKey(t *testing.T) {
	_, _, _, err := ParseURI("gs://bucket-only")
	require.Error(t, err)
}

type stubFetcher struct {
	provider Provider
	fetched  string
}

func (s *stubFetcher) Provider() Provider { return s.provider }
func (s *stubFetcher) Fetch(_ context.Context, uri string, _ string) error {
	s.fetched = uri
	return nil
}

func TestRegistry_DispatchesToMatchingProvider(t *testing.T) {
	gcs := &stubFetcher{provider: ProviderGCS}
	s3f := &stubFetcher{provider: ProviderS3}
	reg := NewRegistry(gcs, s3f)

	require.NoError(t, reg.Fetch(context.Background(), "gs://bucket/key", "/tmp/dest"))
	assert.Equal(t, "gs://bucket/key", gcs.fetched)
	assert.Empty(t, s3f.fetched)
}

func TestRegistry_ErrorsOnUnregisteredProvider(t *testing.T) {
	reg := NewRegistry(&stubFetcher{provider: ProviderGCS})
	err := reg.Fetch(context.Background(), "s3://bucket/key", "/tmp/dest")
	require.Error(t, err)
}
