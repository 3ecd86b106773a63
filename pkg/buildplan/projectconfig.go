package buildplan

import (
	"bytes"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// projectConfigFile is the project-local build config BuildPlanner reads
// for defaults a CLI invocation doesn't override on the command line
// (spec.md §6's project build-config document).
const projectConfigFile = ".calibanconfig.yaml"

// ProjectConfig is the subset of an Invocation a project can default
// through projectConfigFile, read with viper the way the teacher reads
// its own agent config (cmd/ome-agent/config.go), YAML-first with JSON
// as a structurally-compatible subset.
type ProjectConfig struct {
	BaseImages           BaseImages
	AptPackages          AptPackages
	CloudSQLProxy        *CloudSQLProxyConfig
	ExperimentConfigPath string
	Exclusions           []string
}

// LoadProjectConfig reads projectConfigFile from projectDir, returning a
// zero ProjectConfig (not an error) when the file is absent — most
// projects run entirely off CLI flags.
func LoadProjectConfig(fs afero.Fs, projectDir string) (ProjectConfig, error) {
	path := projectDir + "/" + projectConfigFile
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return ProjectConfig{}, calerr.Wrap(calerr.ConfigInvalid, "buildplan.LoadProjectConfig", err)
	}
	if !exists {
		return ProjectConfig{}, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return ProjectConfig{}, calerr.Wrap(calerr.ConfigInvalid, "buildplan.LoadProjectConfig", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return ProjectConfig{}, calerr.Wrap(calerr.ConfigInvalid, "buildplan.LoadProjectConfig", err)
	}

	cfg := ProjectConfig{
		AptPackages: AptPackages{
			Flat: v.GetStringSlice("apt_packages"),
		},
		ExperimentConfigPath: v.GetString("experiment_config"),
		Exclusions:           v.GetStringSlice("exclude"),
	}
	if override := v.GetString("base_image"); override != "" {
		cfg.BaseImages = BaseImages{Override: override}
	}
	if v.IsSet("cloud_sql_proxy") {
		cfg.CloudSQLProxy = &CloudSQLProxyConfig{
			Project:      v.GetString("cloud_sql_proxy.project"),
			Region:       v.GetString("cloud_sql_proxy.region"),
			DB:           v.GetString("cloud_sql_proxy.db"),
			User:         v.GetString("cloud_sql_proxy.user"),
			Password:     v.GetString("cloud_sql_proxy.password"),
			ArtifactRoot: v.GetString("cloud_sql_proxy.artifact_root"),
			Debug:        v.GetBool("cloud_sql_proxy.debug"),
		}
	}
	return cfg, nil
}

// ApplyProjectConfig merges cfg into inv. The base image and the
// cloud_sql_proxy block are taken from cfg only when inv leaves them
// unset, so explicit CLI flags win there; apt packages and exclusion
// patterns from cfg are appended to inv's own. cfg.ExperimentConfigPath
// is not applied.
func ApplyProjectConfig(inv Invocation, cfg ProjectConfig) Invocation {
	if inv.BaseImages.Override == "" && inv.BaseImageOverride == "" {
		inv.BaseImages = cfg.BaseImages
	}
	if len(cfg.AptPackages.Flat) > 0 {
		inv.AptPackages.Flat = append(inv.AptPackages.Flat, cfg.AptPackages.Flat...)
	}
	if inv.CloudSQLProxy == nil {
		inv.CloudSQLProxy = cfg.CloudSQLProxy
	}
	if len(cfg.Exclusions) > 0 {
		inv.Exclusions = append(inv.Exclusions, cfg.Exclusions...)
	}
	return inv
}
