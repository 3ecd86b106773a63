package buildplan

import (
	"github.com/spf13/afero"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// Plan synthesizes a BuildRecipe from inv, deterministically: identical
// inputs (including the filesystem's contents under ProjectDir) produce a
// byte-identical recipe, per spec.md §8's "plan(I) is byte-identical
// across runs" property. fs is injected so tests can exercise Plan
// against an in-memory filesystem instead of the real one.
func Plan(fs afero.Fs, inv Invocation) (*BuildRecipe, error) {
	if err := validateInvocation(fs, inv); err != nil {
		return nil, err
	}

	baseImageRef, err := resolveBaseImage(inv)
	if err != nil {
		return nil, err
	}

	var layers []Layer
	layers = append(layers, Layer{Kind: LayerBaseImage, BaseImageRef: baseImageRef})

	if aptPkgs := inv.AptPackages.Resolve(inv.Mode); len(aptPkgs) > 0 {
		layers = append(layers, Layer{Kind: LayerAptInstall, AptPackages: aptPkgs})
	}

	// LayerCredentials is emitted only when the invocation actually names
	// a credential key; Caliban's core does not discover credentials
	// itself (spec.md §1's explicit out-of-scope "environment-variable
	// and credential discovery") — it only bakes in what it's told.
	if inv.CredentialKeyPath != "" || inv.UseADC {
		layers = append(layers, Layer{
			Kind:              LayerCredentials,
			CredentialKeyPath: inv.CredentialKeyPath,
			UseADC:            inv.UseADC,
		})
	}

	if inv.CloudSQLProxy != nil {
		layers = append(layers, Layer{Kind: LayerCloudSQLProxy, CloudSQLProxy: inv.CloudSQLProxy})
	}

	if inv.RequirementsPath != "" || inv.SetupPath != "" {
		layers = append(layers, Layer{
			Kind:             LayerDependencyDeclaration,
			RequirementsPath: inv.RequirementsPath,
			SetupPath:        inv.SetupPath,
		})

		extras := make([]string, 0, 1+len(inv.Extras))
		extras = append(extras, modeExtra(inv.Mode))
		extras = append(extras, inv.Extras...)
		layers = append(layers, Layer{Kind: LayerDependencyInstall, Extras: extras})
	}

	layers = append(layers, Layer{Kind: LayerProjectSource, ExtraDirs: inv.ExtraDirs})

	entrypoint := ResolveEntrypoint(inv.ModuleSpec)
	layers = append(layers, Layer{Kind: LayerEntrypoint, Entrypoint: entrypoint})

	buildContext, err := enumerateContext(fs, inv.ProjectDir, inv.ExtraDirs, inv.Exclusions)
	if err != nil {
		return nil, err
	}

	return &BuildRecipe{Layers: layers, BuildContext: buildContext}, nil
}

func validateInvocation(fs afero.Fs, inv Invocation) error {
	if inv.Mode == "" {
		return calerr.New(calerr.RecipeInvalid, "buildplan.validateInvocation", "mode is required", nil)
	}
	if inv.Mode != ModeCPU && inv.Mode != ModeGPU && inv.Mode != ModeTPUHost {
		return calerr.New(calerr.PlatformUnsupported, "buildplan.validateInvocation",
			"unrecognized mode: "+string(inv.Mode), nil)
	}
	if inv.ModuleSpec == "" {
		return calerr.New(calerr.RecipeInvalid, "buildplan.validateInvocation", "module spec is required", nil)
	}

	exists, err := afero.DirExists(fs, inv.ProjectDir)
	if err != nil {
		return calerr.Wrap(calerr.RecipeInvalid, "buildplan.validateInvocation", err)
	}
	if !exists {
		return calerr.New(calerr.RecipeInvalid, "buildplan.validateInvocation",
			"project directory does not exist: "+inv.ProjectDir, nil)
	}
	return nil
}
