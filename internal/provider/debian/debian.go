package debian

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/ospackage"
	"github.com/open-edge-platform/container-image-composer/internal/ospackage/debutils"
	"github.com/open-edge-platform/container-image-composer/internal/provider"
	"github.com/open-edge-platform/container-image-composer/internal/utils/archive"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// Debian implements provider.Provider for deb-based targets. The same
// provider serves Debian and Ubuntu repositories since both publish
// Packages indexes under dists/<codename>.
type Debian struct {
	recipe    *config.BuildRecipe
	pkgs      []ospackage.PackageInfo
	checksums map[string]string // deb file basename -> sha256
}

func init() {
	provider.Register(&Debian{})
}

func (p *Debian) Name() string { return "debian" }

// Init registers the recipe repositories as apt sources for the staged
// image and loads the package indexes of every repository.
func (p *Debian) Init(recipe *config.BuildRecipe) error {
	log := logger.Logger()
	p.recipe = recipe
	p.pkgs = nil
	p.checksums = make(map[string]string)

	if err := recipe.GenerateAptSourcesFromRepositories(); err != nil {
		return fmt.Errorf("generating apt sources: %w", err)
	}

	arch := debutils.DebArch(recipe.Target.Arch)
	for _, repo := range recipe.PackageRepositories {
		component := repo.Component
		if component == "" {
			component = "main"
		}

		indexURL := debutils.PackagesIndexURL(repo.URL, repo.Codename, component, arch)
		if indexURL == "" {
			return fmt.Errorf("no packages index found for %s %s/%s", repo.URL, repo.Codename, component)
		}

		pkgs, err := fetchIndex(indexURL, repo.URL)
		if err != nil {
			return fmt.Errorf("loading packages index %s: %w", indexURL, err)
		}

		log.Infof("Loaded %d packages from %s %s/%s", len(pkgs), repo.URL, repo.Codename, component)
		p.pkgs = append(p.pkgs, pkgs...)
		for _, pkg := range pkgs {
			p.checksums[path.Base(pkg.URL)] = pkg.Checksum
		}
	}

	return nil
}

func (p *Debian) Packages() ([]ospackage.PackageInfo, error) {
	if p.pkgs == nil {
		return nil, fmt.Errorf("debian provider is not initialized")
	}
	return p.pkgs, nil
}

func (p *Debian) MatchRequested(requested []string, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error) {
	return debutils.MatchRequested(requested, all)
}

func (p *Debian) Resolve(req []ospackage.PackageInfo, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error) {
	return debutils.Resolve(req, all)
}

// Validate recomputes the sha256 of every downloaded deb in destDir and
// compares it with the index checksum.
func (p *Debian) Validate(destDir string) error {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return fmt.Errorf("reading download directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".deb") {
			continue
		}

		want, ok := p.checksums[entry.Name()]
		if !ok {
			return fmt.Errorf("package %s is not covered by any loaded index", entry.Name())
		}
		if want == "" {
			continue
		}

		got, err := fileSHA256(filepath.Join(destDir, entry.Name()))
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("checksum mismatch for %s: got %s, want %s", entry.Name(), got, want)
		}
	}
	return nil
}

func fetchIndex(indexURL, repoURL string) ([]ospackage.PackageInfo, error) {
	resp, err := http.Get(indexURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status %s", resp.Status)
	}

	dec, err := archive.Decompress(resp.Body, indexURL)
	if err != nil {
		return nil, err
	}
	body := io.Reader(resp.Body)
	if dec != nil {
		defer dec.Close()
		body = dec
	}

	return debutils.ParsePackagesIndex(body, repoURL)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
