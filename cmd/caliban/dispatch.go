package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/caliban-dev/caliban/pkg/artifact"
	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/dispatch"
	"github.com/caliban-dev/caliban/pkg/dockerbuild"
)

// newDispatcherFromFlags assembles a Dispatcher wired to a single
// adapter, the way every dispatching verb (run/submit-cloud/submit-
// cluster) differs only in which backend.Adapter it registers.
func newDispatcherFromFlags(ctx context.Context, cmd *cobra.Command, deps command.Deps, kind backend.Kind, adapter backend.Adapter) *dispatch.Dispatcher {
	project, _ := cmd.Flags().GetString("project")
	builder := dockerbuild.NewBuilder(project, dockerbuild.NewExecRunner("docker"), deps.Log)
	builder.Artifacts = newArtifactRegistry(ctx, deps)
	return dispatch.New(afero.NewOsFs(), deps.Store, builder, map[backend.Kind]backend.Adapter{kind: adapter}, deps.Log)
}

// newArtifactRegistry builds the artifact.Registry a Builder uses to
// resolve a project's cloud_sql_proxy artifact_root. Each fetcher is
// best-effort: a cloud SDK that fails to pick up ambient credentials
// (no GCP/AWS environment configured) is simply left out of the
// registry rather than failing every build that doesn't need it.
func newArtifactRegistry(ctx context.Context, deps command.Deps) *artifact.Registry {
	var fetchers []artifact.Fetcher

	if gcs, err := artifact.NewGCSFetcher(ctx); err != nil {
		deps.Log.WithError(err).Debug("cloud_sql_proxy GCS fetcher unavailable")
	} else {
		fetchers = append(fetchers, gcs)
	}

	if awsCfg, err := config.LoadDefaultConfig(ctx); err != nil {
		deps.Log.WithError(err).Debug("cloud_sql_proxy S3 fetcher unavailable")
	} else {
		fetchers = append(fetchers, artifact.NewS3Fetcher(awsCfg))
	}

	return artifact.NewRegistry(fetchers...)
}

// progressLogger renders dispatch.Progress the way spec.md §7 describes
// ("a progress indicator during sweeps reports successes, failures, and
// remaining count").
func progressLogger(deps command.Deps) dispatch.ProgressFunc {
	return func(p dispatch.Progress) {
		remaining := p.Total - p.Index - 1
		log := deps.Log.WithField("index", p.Index).WithField("total", p.Total).
			WithField("succeeded", p.Succeeded).WithField("failed", p.Failed).
			WithField("remaining", remaining)
		if p.Outcome.Err != nil {
			log.WithError(p.Outcome.Err).Warn("tuple submission failed")
			return
		}
		log.Info("tuple submitted")
	}
}
