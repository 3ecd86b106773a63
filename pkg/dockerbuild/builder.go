// Package dockerbuild implements the external image builder Dispatcher
// hands a BuildRecipe to (spec.md §1's explicit non-goal: Caliban "does
// not implement a container runtime" of its own, so it renders a
// Dockerfile from the recipe and shells out to a pre-existing builder
// binary, the same exec-and-wait idiom pkg/backend/local uses to run
// containers rather than reimplement an engine).
package dockerbuild

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/caliban-dev/caliban/pkg/artifact"
	"github.com/caliban-dev/caliban/pkg/buildplan"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/logging"
)

// Runner abstracts the external builder-binary invocation so tests can
// substitute a fake without actually invoking docker/podman.
type Runner interface {
	Run(ctx context.Context, dir string, args []string) (stderr string, err error)
}

type execRunner struct {
	binary string
}

func (r execRunner) Run(ctx context.Context, dir string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// NewExecRunner builds a Runner that shells out to binary ("docker",
// "podman", ...).
func NewExecRunner(binary string) Runner {
	return execRunner{binary: binary}
}

// Builder renders a buildplan.BuildRecipe as a Dockerfile staged next to
// the project's build context and invokes the external builder binary
// against it, satisfying pkg/dispatch.Builder.
type Builder struct {
	ProjectDir string
	Runner     Runner
	// Artifacts resolves cloud_sql_proxy-style artifact_root URIs into a
	// local file before the Dockerfile's COPY directive runs. Nil unless
	// the caller has wired an artifact.Registry; while it is nil, a recipe
	// whose CloudSQLProxy layer names an ArtifactRoot fails the build
	// rather than silently emitting a COPY of a file that was never fetched.
	Artifacts *artifact.Registry
	log       logging.Interface
}

// NewBuilder constructs a Builder for one project directory. Dispatcher
// is given a fresh Builder per invocation, since a BuildRecipe alone
// carries no project-directory context to stage files from.
func NewBuilder(projectDir string, runner Runner, log logging.Interface) *Builder {
	if log == nil {
		log = logging.Discard()
	}
	return &Builder{ProjectDir: projectDir, Runner: runner, log: log}
}

// Build renders recipe's layers into a Dockerfile, writes it under the
// project directory, and invokes the builder binary tagging the result
// with a name derived from the recipe's content hash, so an unchanged
// recipe reproduces the same image reference (spec.md §3: "two
// invocations that produce the same image reference reuse the existing
// Container row").
func (b *Builder) Build(ctx context.Context, recipe *buildplan.BuildRecipe) (string, error) {
	hash, err := recipe.Hash()
	if err != nil {
		return "", calerr.Wrap(calerr.RecipeInvalid, "dockerbuild.Build", err)
	}
	imageRef := fmt.Sprintf("caliban-local/%s:%s", filepath.Base(b.ProjectDir), hash[:12])

	if err := b.fetchArtifacts(ctx, recipe); err != nil {
		return "", err
	}

	dockerfile := Render(recipe)
	dockerfilePath := filepath.Join(b.ProjectDir, ".caliban.Dockerfile")
	if err := os.WriteFile(dockerfilePath, []byte(dockerfile), 0o644); err != nil {
		return "", calerr.Wrap(calerr.BackendError, "dockerbuild.Build", err)
	}
	defer os.Remove(dockerfilePath)

	args := []string{"build", "-t", imageRef, "-f", dockerfilePath, "."}
	stderr, err := b.Runner.Run(ctx, b.ProjectDir, args)
	if err != nil {
		return "", calerr.Wrap(calerr.BackendError, "dockerbuild.Build", fmt.Errorf("%w: %s", err, stderr))
	}
	b.log.WithField("image_ref", imageRef).Info("built image")
	return imageRef, nil
}

// fetchArtifacts downloads the cloud_sql_proxy binary named by a
// CloudSQLProxy layer's ArtifactRoot to .caliban/cloud_sql_proxy under
// the project directory, where the rendered Dockerfile's COPY directive
// expects to find it.
func (b *Builder) fetchArtifacts(ctx context.Context, recipe *buildplan.BuildRecipe) error {
	for _, layer := range recipe.Layers {
		if layer.Kind != buildplan.LayerCloudSQLProxy || layer.CloudSQLProxy == nil {
			continue
		}
		if layer.CloudSQLProxy.ArtifactRoot == "" {
			continue
		}
		if b.Artifacts == nil {
			return calerr.New(calerr.ConfigInvalid, "dockerbuild.Build",
				"build requires a cloud_sql_proxy artifact but no artifact registry is configured", nil)
		}

		destDir := filepath.Join(b.ProjectDir, ".caliban")
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return calerr.Wrap(calerr.BackendError, "dockerbuild.Build", err)
		}
		destPath := filepath.Join(destDir, "cloud_sql_proxy")
		if err := b.Artifacts.Fetch(ctx, layer.CloudSQLProxy.ArtifactRoot, destPath); err != nil {
			return calerr.Wrap(calerr.RecipeInvalid, "dockerbuild.Build", err)
		}
		if err := os.Chmod(destPath, 0o755); err != nil {
			return calerr.Wrap(calerr.BackendError, "dockerbuild.Build", err)
		}
	}
	return nil
}

// Render produces the Dockerfile text for recipe, one stanza per layer in
// BuildPlanner's already-resolved order (spec.md §4.2's layer ordering:
// base image outward to entrypoint).
func Render(recipe *buildplan.BuildRecipe) string {
	var buf strings.Builder
	for _, layer := range recipe.Layers {
		switch layer.Kind {
		case buildplan.LayerBaseImage:
			fmt.Fprintf(&buf, "FROM %s\n", layer.BaseImageRef)
		case buildplan.LayerAptInstall:
			if len(layer.AptPackages) == 0 {
				continue
			}
			fmt.Fprintf(&buf, "RUN apt-get update && apt-get install -y %s && rm -rf /var/lib/apt/lists/*\n",
				strings.Join(layer.AptPackages, " "))
		case buildplan.LayerCredentials:
			if layer.CredentialKeyPath != "" {
				fmt.Fprintf(&buf, "COPY %s /caliban/credentials.json\n", layer.CredentialKeyPath)
				buf.WriteString("ENV GOOGLE_APPLICATION_CREDENTIALS=/caliban/credentials.json\n")
			}
			if layer.UseADC {
				buf.WriteString("ENV GOOGLE_APPLICATION_CREDENTIALS=\n")
			}
		case buildplan.LayerCloudSQLProxy:
			if layer.CloudSQLProxy != nil {
				buf.WriteString("COPY .caliban/cloud_sql_proxy /usr/local/bin/cloud_sql_proxy\n")
				buf.WriteString("RUN chmod +x /usr/local/bin/cloud_sql_proxy\n")
			}
		case buildplan.LayerDependencyDeclaration:
			if layer.RequirementsPath != "" {
				fmt.Fprintf(&buf, "COPY %s /workspace/%s\n", layer.RequirementsPath, layer.RequirementsPath)
			}
			if layer.SetupPath != "" {
				fmt.Fprintf(&buf, "COPY %s /workspace/%s\n", layer.SetupPath, layer.SetupPath)
			}
		case buildplan.LayerDependencyInstall:
			if len(layer.Extras) == 0 {
				continue
			}
			// layer.Extras holds bare extras names (the mode token plus any
			// user-requested extras); pip resolves them against the
			// project's own setup.py/pyproject extras via the .[...] syntax.
			fmt.Fprintf(&buf, "RUN pip install --no-cache-dir '.[%s]'\n", strings.Join(layer.Extras, ","))
		case buildplan.LayerProjectSource:
			buf.WriteString("COPY . /workspace\n")
			for _, dir := range layer.ExtraDirs {
				fmt.Fprintf(&buf, "COPY %s /workspace/%s\n", dir, dir)
			}
			buf.WriteString("WORKDIR /workspace\n")
		case buildplan.LayerEntrypoint:
			buf.WriteString(entrypointDirective(layer.Entrypoint))
		}
	}
	return buf.String()
}

func entrypointDirective(ep buildplan.Entrypoint) string {
	switch ep.Kind {
	case buildplan.PyModule:
		return fmt.Sprintf("ENTRYPOINT [\"python\", \"-m\", %q]\n", ep.Value)
	case buildplan.PyScript:
		return fmt.Sprintf("ENTRYPOINT [\"python\", %q]\n", ep.Value)
	default:
		return fmt.Sprintf("ENTRYPOINT [%q]\n", ep.Value)
	}
}
