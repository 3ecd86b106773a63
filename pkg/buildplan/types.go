// Package buildplan implements the BuildPlanner component: from an
// Invocation (project directory, mode, requested extras, module spec,
// extra directories, optional image override) it deterministically
// produces a BuildRecipe the external image builder consumes.
package buildplan

// Mode is the hardware target a built image runs under.
type Mode string

const (
	ModeCPU     Mode = "CPU"
	ModeGPU     Mode = "GPU"
	ModeTPUHost Mode = "TPU-host"
)

// EntrypointKind tags which of the three entrypoint shapes an Entrypoint
// holds (spec.md §9's tagged variant Entrypoint ∈ {PyModule, PyScript,
// Shell}).
type EntrypointKind int

const (
	PyModule EntrypointKind = iota
	PyScript
	Shell
)

// Entrypoint is the resolved, kind-tagged form of a module-spec string.
type Entrypoint struct {
	Kind EntrypointKind
	// Value is the dotted module name for PyModule, or the file path
	// relative to the build context for PyScript/Shell.
	Value string
}

// ResolveEntrypoint classifies a module-spec string per spec.md §4.2's
// entrypoint rules: "a.b.c" -> python module; "path/to/file.py" -> python
// script; "path/to/file" (any other extension, including none) -> shell
// script.
func ResolveEntrypoint(moduleSpec string) Entrypoint {
	if looksLikeModulePath(moduleSpec) {
		return Entrypoint{Kind: PyModule, Value: moduleSpec}
	}
	if hasSuffix(moduleSpec, ".py") {
		return Entrypoint{Kind: PyScript, Value: moduleSpec}
	}
	return Entrypoint{Kind: Shell, Value: moduleSpec}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// looksLikeModulePath distinguishes "a.b.c" style module specs from path
// specs: a module spec contains no path separator and no file extension
// recognized as a script/shell entrypoint.
func looksLikeModulePath(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return false
		}
	}
	if hasSuffix(s, ".py") || hasSuffix(s, ".sh") {
		return false
	}
	return containsDot(s)
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

// Invocation is the resolved set of parameters BuildPlanner needs to plan
// a build; the CLI layer assembles this from flags, project config, and
// environment.
type Invocation struct {
	ProjectDir       string
	Mode             Mode
	Extras           []string // user-requested pip extras, beyond cpu/gpu
	ModuleSpec       string
	ExtraDirs        []string // in user-supplied order
	ImageOverride    string   // when set, BuildPlanner is skipped entirely
	BaseImageOverride string
	RequirementsPath string // relative to ProjectDir; "" if absent
	SetupPath        string // relative to ProjectDir; "" if absent
	AptPackages      AptPackages
	BaseImages       BaseImages
	CredentialKeyPath string // host path to a service-account key; "" if none
	UseADC            bool   // bake in application-default-credentials
	CloudSQLProxy    *CloudSQLProxyConfig
	Exclusions       []string // .dockerignore-equivalent patterns
}

// AptPackages is either a flat list (applied regardless of mode) or a
// mode-keyed map; at most one of Flat/ByMode is populated.
type AptPackages struct {
	Flat   []string
	ByMode map[Mode][]string
}

// Resolve returns the sorted, deduplicated apt package list for mode.
func (p AptPackages) Resolve(mode Mode) []string {
	var pkgs []string
	if len(p.Flat) > 0 {
		pkgs = append(pkgs, p.Flat...)
	}
	if byMode, ok := p.ByMode[mode]; ok {
		pkgs = append(pkgs, byMode...)
	}
	return sortedDedup(pkgs)
}

// BaseImages holds the override/dictionary/default resolution sources
// for the base image, in priority order (spec.md §4.2).
type BaseImages struct {
	Override string // highest priority, may contain a "{}" mode placeholder
	ByMode   map[Mode]string
}

// CloudSQLProxyConfig mirrors spec.md §6's cloud_sql_proxy document key.
type CloudSQLProxyConfig struct {
	Project      string
	Region       string
	DB           string
	User         string
	Password     string
	ArtifactRoot string // object-storage URI the proxy binary is fetched from
	Debug        bool
}

func sortedDedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	// insertion sort, small N expected (apt package lists)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
