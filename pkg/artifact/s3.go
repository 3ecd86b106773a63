package artifact

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// S3Fetcher fetches objects from Amazon S3 (or an S3-compatible
// endpoint) using the AWS SDK v2 download manager, for artifact_root
// values outside of GCP-hosted clusters.
type S3Fetcher struct {
	downloader *manager.Downloader
}

// NewS3Fetcher builds an S3Fetcher over an aws.Config the caller has
// already resolved (region, credentials).
func NewS3Fetcher(cfg aws.Config) *S3Fetcher {
	client := s3.NewFromConfig(cfg)
	return &S3Fetcher{downloader: manager.NewDownloader(client)}
}

func (f *S3Fetcher) Provider() Provider { return ProviderS3 }

func (f *S3Fetcher) Fetch(ctx context.Context, uri string, destPath string) error {
	_, bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}

	out, err := os.Create(destPath)
	if err != nil {
		return calerr.Wrap(calerr.RecipeInvalid, "artifact.S3Fetcher.Fetch", err)
	}
	defer out.Close()

	_, err = f.downloader.Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return calerr.New(calerr.RecipeInvalid, "artifact.S3Fetcher.Fetch", uri, err)
	}
	return nil
}
