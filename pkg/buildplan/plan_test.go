package buildplan

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

func newProjectFS(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/requirements.txt", []byte("numpy\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proj/train.py", []byte("print('hi')\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proj/.git/HEAD", []byte("ref: refs/heads/main\n"), 0o644))
	return fs
}

func baseInvocation() Invocation {
	return Invocation{
		ProjectDir:       "/proj",
		Mode:             ModeCPU,
		ModuleSpec:       "train.py",
		RequirementsPath: "requirements.txt",
		Exclusions:       []string{".git"},
	}
}

func TestPlan_DeterministicAcrossRuns(t *testing.T) {
	fs := newProjectFS(t)
	inv := baseInvocation()

	r1, err := Plan(fs, inv)
	require.NoError(t, err)
	r2, err := Plan(fs, inv)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
}

func TestPlan_LayerOrdering(t *testing.T) {
	fs := newProjectFS(t)
	inv := baseInvocation()
	inv.AptPackages = AptPackages{Flat: []string{"zlib1g", "curl"}}
	inv.CloudSQLProxy = &CloudSQLProxyConfig{Project: "p", Region: "r", DB: "d", ArtifactRoot: "gs://b/proxy"}

	recipe, err := Plan(fs, inv)
	require.NoError(t, err)

	var kinds []LayerKind
	for _, l := range recipe.Layers {
		kinds = append(kinds, l.Kind)
	}
	assert.Equal(t, []LayerKind{
		LayerBaseImage,
		LayerAptInstall,
		LayerCloudSQLProxy,
		LayerDependencyDeclaration,
		LayerDependencyInstall,
		LayerProjectSource,
		LayerEntrypoint,
	}, kinds)

	// apt packages sorted-deduplicated
	for _, l := range recipe.Layers {
		if l.Kind == LayerAptInstall {
			assert.Equal(t, []string{"curl", "zlib1g"}, l.AptPackages)
		}
	}
}

func TestPlan_CredentialsLayerEmittedOnlyWhenRequested(t *testing.T) {
	fs := newProjectFS(t)
	inv := baseInvocation()
	inv.CredentialKeyPath = "/host/sa-key.json"

	recipe, err := Plan(fs, inv)
	require.NoError(t, err)

	var found *Layer
	for i := range recipe.Layers {
		if recipe.Layers[i].Kind == LayerCredentials {
			found = &recipe.Layers[i]
		}
	}
	require.NotNil(t, found, "expected a LayerCredentials layer when CredentialKeyPath is set")
	assert.Equal(t, "/host/sa-key.json", found.CredentialKeyPath)

	plain, err := Plan(fs, baseInvocation())
	require.NoError(t, err)
	for _, l := range plain.Layers {
		assert.NotEqual(t, LayerCredentials, l.Kind, "no credentials requested, no layer expected")
	}
}

func TestPlan_ExcludesDotGitFromBuildContext(t *testing.T) {
	fs := newProjectFS(t)
	recipe, err := Plan(fs, baseInvocation())
	require.NoError(t, err)

	for _, e := range recipe.BuildContext {
		assert.NotContains(t, e.RelPath, ".git")
	}
}

func TestPlan_MissingExtraDirIsRecipeInvalid(t *testing.T) {
	fs := newProjectFS(t)
	inv := baseInvocation()
	inv.ExtraDirs = []string{"does-not-exist"}

	_, err := Plan(fs, inv)
	require.Error(t, err)
	kind, ok := calerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, calerr.RecipeInvalid, kind)
}

func TestPlan_GPUModeSelectsGPUAptSetAndExtra(t *testing.T) {
	fs := newProjectFS(t)
	inv := baseInvocation()
	inv.Mode = ModeGPU
	inv.AptPackages = AptPackages{ByMode: map[Mode][]string{
		ModeCPU: {"libopenblas-base"},
		ModeGPU: {"nvidia-cuda-toolkit"},
	}}

	recipe, err := Plan(fs, inv)
	require.NoError(t, err)

	for _, l := range recipe.Layers {
		if l.Kind == LayerAptInstall {
			assert.Equal(t, []string{"nvidia-cuda-toolkit"}, l.AptPackages)
		}
		if l.Kind == LayerDependencyInstall {
			assert.Equal(t, "gpu", l.Extras[0])
		}
	}
}

func TestResolveBaseImage_OverridePrecedenceAndShortForm(t *testing.T) {
	inv := baseInvocation()
	inv.Mode = ModeGPU
	inv.BaseImageOverride = "dlvm:tf2-gpu-2.2"

	ref, err := resolveBaseImage(inv)
	require.NoError(t, err)
	assert.Contains(t, ref, "tf2-gpu")
}

func TestResolveBaseImage_PlaceholderSubstitution(t *testing.T) {
	inv := baseInvocation()
	inv.Mode = ModeGPU
	inv.BaseImageOverride = "myrepo/custom-{}"

	ref, err := resolveBaseImage(inv)
	require.NoError(t, err)
	assert.Equal(t, "myrepo/custom-GPU", ref)
}

func TestResolveBaseImage_FallsBackToDefault(t *testing.T) {
	inv := baseInvocation()
	ref, err := resolveBaseImage(inv)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
}

func TestResolveEntrypoint(t *testing.T) {
	cases := map[string]EntrypointKind{
		"my.pkg.train":   PyModule,
		"train.py":       PyScript,
		"scripts/run.sh": Shell,
		"run":            Shell,
	}
	for spec, want := range cases {
		got := ResolveEntrypoint(spec)
		assert.Equal(t, want, got.Kind, "spec=%s", spec)
	}
}
