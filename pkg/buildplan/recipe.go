package buildplan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// LayerKind tags the eight ordered layer directives a BuildRecipe can
// contain (spec.md §4.2's layer ordering, base outward).
type LayerKind int

const (
	LayerBaseImage LayerKind = iota
	LayerAptInstall
	LayerCredentials
	LayerCloudSQLProxy
	LayerDependencyDeclaration
	LayerDependencyInstall
	LayerProjectSource
	LayerEntrypoint
)

// Layer is one directive in a BuildRecipe's ordered layer list.
type Layer struct {
	Kind LayerKind

	// LayerBaseImage
	BaseImageRef string

	// LayerAptInstall
	AptPackages []string

	// LayerCredentials
	CredentialKeyPath string // host path to the service-account key, if any
	UseADC            bool   // application-default-credentials, if configured instead/also

	// LayerCloudSQLProxy
	CloudSQLProxy *CloudSQLProxyConfig

	// LayerDependencyDeclaration
	RequirementsPath string
	SetupPath        string

	// LayerDependencyInstall
	Extras []string // mode extra ("cpu"/"gpu") plus user-requested extras, in that order

	// LayerProjectSource
	ExtraDirs []string // in user-supplied order

	// LayerEntrypoint
	Entrypoint Entrypoint
}

// BuildContextEntry is one file the build context manifest includes.
type BuildContextEntry struct {
	// RelPath is the path relative to the project directory (or, for an
	// extra dir, relative to ProjectDir as "extraDir/...").
	RelPath string
	Size    int64
}

// BuildRecipe is BuildPlanner's deterministic output: an ordered layer
// list plus the enumerated build context.
type BuildRecipe struct {
	Layers      []Layer
	BuildContext []BuildContextEntry
}

// Hash returns a stable content digest of the recipe. Dispatcher records
// it on the Container row, and dockerbuild tags the built image with its
// prefix, so an unchanged recipe yields the same image reference and
// therefore reuses the existing Container row (spec.md §3). The builder
// is still invoked on every build; the hash does not skip it. Marshaling
// preserves struct field order and slice order, both already canonical
// by the time Plan returns, so the digest is reproducible across runs.
func (r *BuildRecipe) Hash() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// shortFormBaseImages maps recognized short-form base image tags to their
// canonical registry references (spec.md §4.2: "A recognized short-form
// (e.g., dlvm:tf2-gpu-2.2) must be expanded to its canonical reference").
var shortFormBaseImages = map[string]string{
	"dlvm:tf2-cpu-2.2":  "gcr.io/deeplearning-platform-release/tf2-cpu.2-2:latest",
	"dlvm:tf2-gpu-2.2":  "gcr.io/deeplearning-platform-release/tf2-gpu.2-2:latest",
	"dlvm:pytorch-cpu":  "gcr.io/deeplearning-platform-release/pytorch-cpu:latest",
	"dlvm:pytorch-gpu":  "gcr.io/deeplearning-platform-release/pytorch-gpu:latest",
}

// defaultBaseImages is the fallback base image per mode when neither an
// override nor a configured dictionary entry applies.
var defaultBaseImages = map[Mode]string{
	ModeCPU:     "gcr.io/deeplearning-platform-release/base-cpu:latest",
	ModeGPU:     "gcr.io/deeplearning-platform-release/base-gpu:latest",
	ModeTPUHost: "gcr.io/deeplearning-platform-release/base-cpu:latest",
}

// resolveBaseImage implements spec.md §4.2's three-tier base image
// resolution: explicit override > mode dictionary > per-mode default.
// A single-brace placeholder "{}" in the override is substituted with
// the mode tag.
func resolveBaseImage(inv Invocation) (string, error) {
	if inv.BaseImageOverride != "" {
		return expandShortForm(substituteModePlaceholder(inv.BaseImageOverride, inv.Mode)), nil
	}
	if inv.BaseImages.Override != "" {
		return expandShortForm(substituteModePlaceholder(inv.BaseImages.Override, inv.Mode)), nil
	}
	if ref, ok := inv.BaseImages.ByMode[inv.Mode]; ok {
		return expandShortForm(substituteModePlaceholder(ref, inv.Mode)), nil
	}
	if ref, ok := defaultBaseImages[inv.Mode]; ok {
		return ref, nil
	}
	return "", calerr.New(calerr.RecipeInvalid, "buildplan.resolveBaseImage",
		fmt.Sprintf("no base image configured or defaulted for mode %q", inv.Mode), nil)
}

func substituteModePlaceholder(ref string, mode Mode) string {
	return strings.ReplaceAll(ref, "{}", string(mode))
}

func expandShortForm(ref string) string {
	if canonical, ok := shortFormBaseImages[ref]; ok {
		return canonical
	}
	return ref
}

// modeExtra returns the pip-equivalent extras-map key BuildPlanner
// requests for mode (spec.md §4.2: "the mode-appropriate extras set
// requested (cpu or gpu)").
func modeExtra(mode Mode) string {
	if mode == ModeGPU {
		return "gpu"
	}
	return "cpu"
}
