package provider

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/ospackage"
)

// Provider is the interface every OS package source must implement.
type Provider interface {
	// Name is a unique ID, e.g. "debian" or "azurelinux3".
	Name() string

	// Init does any one-time setup: fetch repo indexes, register apt
	// sources, import keys.
	Init(recipe *config.BuildRecipe) error

	// Packages returns every package the configured repositories offer.
	Packages() ([]ospackage.PackageInfo, error)

	// MatchRequested maps requested package names to index entries.
	MatchRequested(requested []string, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error)

	// Resolve walks dependencies and returns the full install set.
	Resolve(req []ospackage.PackageInfo, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error)

	// Validate walks destDir and verifies each downloaded package file.
	Validate(destDir string) error
}

var providers = make(map[string]Provider)

// Register makes a Provider available under its Name().
func Register(p Provider) {
	providers[p.Name()] = p
}

// Get returns the Provider by name.
func Get(name string) (Provider, bool) {
	p, ok := providers[name]
	return p, ok
}

// ForRecipe selects the provider matching the recipe target OS.
func ForRecipe(recipe *config.BuildRecipe) (Provider, error) {
	var id string
	switch strings.ToLower(recipe.Target.OS) {
	case "debian", "ubuntu":
		id = "debian"
	case "azurelinux", "azurelinux3":
		id = "azurelinux3"
	default:
		return nil, fmt.Errorf("no package provider for target OS %q", recipe.Target.OS)
	}

	p, ok := Get(id)
	if !ok {
		return nil, fmt.Errorf("package provider %q is not registered", id)
	}
	return p, nil
}
