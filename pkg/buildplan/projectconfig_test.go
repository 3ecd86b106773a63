package buildplan

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProjectConfig_AbsentFileReturnsZeroValue(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg, err := LoadProjectConfig(fs, "/proj")

	require.NoError(t, err)
	assert.Equal(t, ProjectConfig{}, cfg)
}

func TestLoadProjectConfig_ParsesKnownKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `
apt_packages:
  - libopenblas-base
  - curl
base_image: myrepo/custom-{}
experiment_config: sweeps/default.yaml
exclude:
  - .git
  - "*.pyc"
cloud_sql_proxy:
  project: my-project
  region: us-central1
  db: mydb
  user: admin
  artifact_root: gs://bucket/cloud_sql_proxy
  debug: true
`
	require.NoError(t, afero.WriteFile(fs, "/proj/.calibanconfig.yaml", []byte(doc), 0o644))

	cfg, err := LoadProjectConfig(fs, "/proj")

	require.NoError(t, err)
	assert.Equal(t, []string{"libopenblas-base", "curl"}, cfg.AptPackages.Flat)
	assert.Equal(t, "myrepo/custom-{}", cfg.BaseImages.Override)
	assert.Equal(t, "sweeps/default.yaml", cfg.ExperimentConfigPath)
	assert.Equal(t, []string{".git", "*.pyc"}, cfg.Exclusions)
	require.NotNil(t, cfg.CloudSQLProxy)
	assert.Equal(t, "my-project", cfg.CloudSQLProxy.Project)
	assert.Equal(t, "gs://bucket/cloud_sql_proxy", cfg.CloudSQLProxy.ArtifactRoot)
	assert.True(t, cfg.CloudSQLProxy.Debug)
}

func TestApplyProjectConfig_FlagsWinOverProjectConfig(t *testing.T) {
	inv := Invocation{BaseImageOverride: "explicit-override"}
	cfg := ProjectConfig{BaseImages: BaseImages{Override: "from-config"}}

	got := ApplyProjectConfig(inv, cfg)

	assert.Equal(t, "explicit-override", got.BaseImageOverride)
	assert.Empty(t, got.BaseImages.Override)
}

func TestApplyProjectConfig_FillsUnsetFieldsFromConfig(t *testing.T) {
	inv := Invocation{}
	cfg := ProjectConfig{
		BaseImages:    BaseImages{Override: "from-config"},
		AptPackages:   AptPackages{Flat: []string{"curl"}},
		CloudSQLProxy: &CloudSQLProxyConfig{Project: "p"},
		Exclusions:    []string{"*.pyc"},
	}

	got := ApplyProjectConfig(inv, cfg)

	assert.Equal(t, "from-config", got.BaseImages.Override)
	assert.Equal(t, []string{"curl"}, got.AptPackages.Flat)
	require.NotNil(t, got.CloudSQLProxy)
	assert.Equal(t, "p", got.CloudSQLProxy.Project)
	assert.Equal(t, []string{"*.pyc"}, got.Exclusions)
}

func TestApplyProjectConfig_AppendsAptPackagesRatherThanReplacing(t *testing.T) {
	inv := Invocation{AptPackages: AptPackages{Flat: []string{"from-flag"}}}
	cfg := ProjectConfig{AptPackages: AptPackages{Flat: []string{"from-config"}}}

	got := ApplyProjectConfig(inv, cfg)

	assert.Equal(t, []string{"from-flag", "from-config"}, got.AptPackages.Flat)
}
