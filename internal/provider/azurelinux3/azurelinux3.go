package azurelinux3

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/ospackage"
	"github.com/open-edge-platform/container-image-composer/internal/ospackage/rpmutils"
	"github.com/open-edge-platform/container-image-composer/internal/pkgfetcher"
	"github.com/open-edge-platform/container-image-composer/internal/provider"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// AzureLinux3 implements provider.Provider for rpm-based targets using
// repomd repositories.
type AzureLinux3 struct {
	recipe  *config.BuildRecipe
	pkgs    []ospackage.PackageInfo
	keySrcs []string // GPG key URLs or paths from the recipe repositories
}

func init() {
	provider.Register(&AzureLinux3{})
}

func (p *AzureLinux3) Name() string { return "azurelinux3" }

// Init loads the primary metadata of every configured repository.
func (p *AzureLinux3) Init(recipe *config.BuildRecipe) error {
	log := logger.Logger()
	p.recipe = recipe
	p.pkgs = nil
	p.keySrcs = nil

	for _, repo := range recipe.PackageRepositories {
		repomdURL := strings.TrimSuffix(repo.URL, "/") + "/repodata/repomd.xml"
		primaryHref, err := rpmutils.FetchPrimaryURL(repomdURL)
		if err != nil {
			return fmt.Errorf("reading repo metadata %s: %w", repomdURL, err)
		}

		pkgs, err := rpmutils.ParsePrimary(repo.URL, primaryHref)
		if err != nil {
			return fmt.Errorf("loading primary metadata for %s: %w", repo.URL, err)
		}

		log.Infof("Loaded %d packages from %s", len(pkgs), repo.URL)
		p.pkgs = append(p.pkgs, pkgs...)
		if repo.PKey != "" {
			p.keySrcs = append(p.keySrcs, repo.PKey)
		}
	}
	return nil
}

func (p *AzureLinux3) Packages() ([]ospackage.PackageInfo, error) {
	if p.pkgs == nil {
		return nil, fmt.Errorf("azurelinux3 provider is not initialized")
	}
	return p.pkgs, nil
}

func (p *AzureLinux3) MatchRequested(requested []string, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error) {
	return rpmutils.MatchRequested(requested, all)
}

func (p *AzureLinux3) Resolve(req []ospackage.PackageInfo, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error) {
	return rpmutils.Resolve(req, all)
}

// Validate checks every downloaded rpm in destDir: its header identity must
// match the target architecture and its GPG signature must verify against
// the repository keys. Without keys, packages stay unverified and the build
// is rejected.
func (p *AzureLinux3) Validate(destDir string) error {
	var rpms []string
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return fmt.Errorf("reading download directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".rpm") {
			rpms = append(rpms, filepath.Join(destDir, entry.Name()))
		}
	}
	if len(rpms) == 0 {
		return nil
	}

	var errs []error
	for _, rpmPath := range rpms {
		name, _, arch, err := rpmutils.ReadMetadata(rpmPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path.Base(rpmPath), err))
			continue
		}
		if want := p.recipe.Target.Arch; want != "" && arch != want && arch != "noarch" {
			errs = append(errs, fmt.Errorf("%s: built for %s, target is %s", name, arch, want))
		}
	}

	if len(p.keySrcs) == 0 {
		errs = append(errs, fmt.Errorf("no GPG key configured for rpm verification"))
		return errors.Join(errs...)
	}

	keyringPath, err := p.localKeyring(destDir)
	if err != nil {
		return err
	}

	for _, result := range rpmutils.VerifyAll(rpms, keyringPath, config.Workers()) {
		if !result.OK {
			errs = append(errs, fmt.Errorf("%s: %w", path.Base(result.Path), result.Error))
		}
	}
	return errors.Join(errs...)
}

// localKeyring materializes the first repository key as a local file.
func (p *AzureLinux3) localKeyring(destDir string) (string, error) {
	src := p.keySrcs[0]
	if !strings.Contains(src, "://") {
		return src, nil
	}

	local := filepath.Join(destDir, path.Base(src))
	if err := pkgfetcher.FetchFile(pkgfetcher.Artifact{URL: src}, local); err != nil {
		return "", fmt.Errorf("fetching GPG key %s: %w", src, err)
	}
	return local, nil
}
