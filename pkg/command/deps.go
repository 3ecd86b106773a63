package command

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/caliban-dev/caliban/pkg/configutils"
	"github.com/caliban-dev/caliban/pkg/logging"
	"github.com/caliban-dev/caliban/pkg/registry"
)

// envPrefix is the environment variable prefix every Caliban verb binds its
// viper instance to (CALIBAN_DEBUG, CALIBAN_REGISTRY, ...), the way the
// teacher's agent binary binds OME_AGENT_*.
const envPrefix = "CALIBAN"

// Deps is the common dependency set every Module.Run receives, assembled
// once per invocation by fx the way the teacher's runAgentCommand assembles
// its agent's storage/auth clients before calling into agent.Run.
type Deps struct {
	Viper *viper.Viper
	Log   logging.Interface
	Store *registry.Store
}

func provideDeps(v *viper.Viper, log logging.Interface, store *registry.Store) Deps {
	return Deps{Viper: v, Log: log, Store: store}
}

// configProvider builds the fx.Option that provides *viper.Viper for one
// verb invocation, generalizing the teacher's cmd/ome-agent/config.go
// configProvider: same env-prefix/debug-flag wiring, stripped of the
// training-agent-specific BindEnv calls that have no Caliban equivalent.
// Unlike the teacher, a config file is optional — most verbs run entirely
// off flags and environment, so an absent --config degrades to an empty
// document rather than failing the command.
func configProvider(cmd *cobra.Command) fx.Option {
	return fx.Provide(func() (*viper.Viper, error) {
		v := viper.New()
		v.SetEnvPrefix(envPrefix)
		v.AutomaticEnv()

		if err := v.BindPFlag("debug", cmd.Flags().Lookup("debug")); err != nil {
			return nil, fmt.Errorf("binding debug flag: %w", err)
		}

		path, _ := cmd.Flags().GetString("config")
		if path != "" {
			if err := configutils.ResolveAndMergeFile(v, path); err != nil {
				return nil, fmt.Errorf("cannot read config file: %w", err)
			}
		}
		return v, nil
	})
}

func provideZapLogger(v *viper.Viper) (*zap.Logger, error) {
	// --debug/CALIBAN_DEBUG is bound at the top level; logging.WithViper
	// reads it back under the "logging" key the way the teacher's agent
	// config nests every package's settings under its own key.
	v.Set("logging.debug", v.GetBool("debug"))
	cfg, err := logging.NewConfig(logging.WithViper(v))
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(cfg)
}

func provideLogger(l *zap.Logger) logging.Interface {
	return logging.ForZap(l)
}

// provideStore returns an fx provider for *registry.Store rooted at
// --registry, defaulting to $XDG_STATE_HOME/caliban/registry.db (or
// ~/.local/state/caliban/registry.db) the way the teacher roots its agent
// state under a well-known directory rather than the working directory.
func provideStore(cmd *cobra.Command) func(logging.Interface) (*registry.Store, error) {
	return func(log logging.Interface) (*registry.Store, error) {
		path, _ := cmd.Flags().GetString("registry")
		if path == "" {
			var err error
			path, err = defaultRegistryPath()
			if err != nil {
				return nil, err
			}
		}
		return registry.Open(path, log)
	}
}

func defaultRegistryPath() (string, error) {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "caliban", "registry.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving default registry path: %w", err)
	}
	return filepath.Join(home, ".local", "state", "caliban", "registry.db"), nil
}
