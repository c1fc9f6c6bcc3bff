package debian

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/provider"
)

var debPayload = []byte("fake deb content")

func packagesIndex() string {
	sum := sha256.Sum256(debPayload)
	return fmt.Sprintf(`Package: tesseract-ocr
Version: 5.3.0-2
Architecture: amd64
Depends: libc6 (>= 2.34)
Filename: pool/main/t/tesseract-ocr_5.3.0-2_amd64.deb
SHA256: %s

Package: libc6
Version: 2.36-9
Architecture: amd64
Filename: pool/main/g/libc6_2.36-9_amd64.deb
SHA256: %s
`, hex.EncodeToString(sum[:]), hex.EncodeToString(sum[:]))
}

func newRepoServer(t *testing.T) *httptest.Server {
	t.Helper()

	var gzIndex bytes.Buffer
	gz := gzip.NewWriter(&gzIndex)
	if _, err := gz.Write([]byte(packagesIndex())); err != nil {
		t.Fatalf("Failed to compress index: %v", err)
	}
	gz.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/dists/bookworm/main/binary-amd64/Packages.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzIndex.Bytes())
	})
	mux.HandleFunc("/pool/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(debPayload)
	})
	return httptest.NewServer(mux)
}

func testRecipe(repoURL string) *config.BuildRecipe {
	return &config.BuildRecipe{
		Image:  config.ImageInfo{Name: "form-service", Version: "1.0.0"},
		Target: config.TargetInfo{OS: "debian", Dist: "bookworm", Arch: "x86_64"},
		PackageRepositories: []config.PackageRepository{
			{Codename: "bookworm", URL: repoURL},
		},
		Packages: []string{"tesseract-ocr"},
	}
}

func TestDebianProvider(t *testing.T) {
	server := newRepoServer(t)
	defer server.Close()

	p := &Debian{}
	recipe := testRecipe(server.URL)

	if err := p.Init(recipe); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	all, err := p.Packages()
	if err != nil {
		t.Fatalf("Packages failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 packages, got %d", len(all))
	}

	// Init registers the generated apt sources as additional files
	foundSources := false
	for _, f := range recipe.SystemConfig.AdditionalFiles {
		if f.Final == "/etc/apt/sources.list.d/package-repositories.list" {
			foundSources = true
		}
	}
	if !foundSources {
		t.Error("Expected apt sources file registered in recipe")
	}

	requested, err := p.MatchRequested(recipe.Packages, all)
	if err != nil {
		t.Fatalf("MatchRequested failed: %v", err)
	}
	if len(requested) != 1 || requested[0].Name != "tesseract-ocr" {
		t.Fatalf("Unexpected match result: %+v", requested)
	}

	resolved, err := p.Resolve(requested, all)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved) != 2 {
		t.Errorf("Expected dependency closure of 2 packages, got %d", len(resolved))
	}
}

func TestDebianProviderValidate(t *testing.T) {
	server := newRepoServer(t)
	defer server.Close()

	p := &Debian{}
	if err := p.Init(testRecipe(server.URL)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	destDir := t.TempDir()
	debName := "tesseract-ocr_5.3.0-2_amd64.deb"
	if err := os.WriteFile(filepath.Join(destDir, debName), debPayload, 0644); err != nil {
		t.Fatalf("Failed to stage deb: %v", err)
	}

	if err := p.Validate(destDir); err != nil {
		t.Errorf("Validate failed on good download: %v", err)
	}

	if err := os.WriteFile(filepath.Join(destDir, debName), []byte("corrupted"), 0644); err != nil {
		t.Fatalf("Failed to corrupt deb: %v", err)
	}
	if err := p.Validate(destDir); err == nil {
		t.Error("Expected checksum mismatch error")
	}

	if err := os.WriteFile(filepath.Join(destDir, "unknown_1.0_amd64.deb"), debPayload, 0644); err != nil {
		t.Fatalf("Failed to stage unknown deb: %v", err)
	}
	if err := p.Validate(destDir); err == nil {
		t.Error("Expected error for deb not covered by any index")
	}
}

func TestDebianProviderNotInitialized(t *testing.T) {
	p := &Debian{}
	if _, err := p.Packages(); err == nil {
		t.Error("Expected error before Init")
	}
}

func TestProviderRegistration(t *testing.T) {
	if _, ok := provider.Get("debian"); !ok {
		t.Error("Expected debian provider registered")
	}

	recipe := testRecipe("http://example.com")
	p, err := provider.ForRecipe(recipe)
	if err != nil {
		t.Fatalf("ForRecipe failed: %v", err)
	}
	if p.Name() != "debian" {
		t.Errorf("Expected debian provider, got %s", p.Name())
	}

	recipe.Target.OS = "plan9"
	if _, err := provider.ForRecipe(recipe); err == nil {
		t.Error("Expected error for unsupported target OS")
	}
}
