package config

import (
	"os"
	"strings"
	"testing"
)

// TestAptSourcesGeneration tests the complete flow from recipe repositories
// to generated sources and preferences files.
func TestAptSourcesGeneration(t *testing.T) {
	recipe := &BuildRecipe{
		Image: ImageInfo{
			Name:    "test-package-repos-ubuntu",
			Version: "24.04",
		},
		Target: TargetInfo{
			OS:        "ubuntu",
			Dist:      "ubuntu24",
			Arch:      "x86_64",
			ImageType: "oci",
		},
		PackageRepositories: []PackageRepository{
			{
				Codename:  "sed",
				URL:       "https://eci.intel.com/sed-repos/noble",
				PKey:      "https://eci.intel.com/sed-repos/gpg-keys/GPG-PUB-KEY-INTEL-SED.gpg",
				Priority:  1000,
				Component: "",
			},
			{
				Codename:  "ubuntu24",
				URL:       "https://apt.repos.intel.com/openvino/2025",
				PKey:      "https://apt.repos.intel.com/intel-gpg-keys/GPG-PUB-KEY-INTEL-SW-PRODUCTS.PUB",
				Component: "main contrib",
			},
		},
		SystemConfig: SystemConfig{
			Name: "test-minimal",
			AdditionalFiles: []AdditionalFileInfo{
				{Local: "../additionalfiles/requirements.txt", Final: "/app/requirements.txt"},
			},
		},
	}

	err := recipe.GenerateAptSourcesFromRepositories()
	if err != nil {
		t.Fatalf("Failed to generate apt sources: %v", err)
	}

	defer func() {
		for _, file := range recipe.SystemConfig.AdditionalFiles {
			if strings.HasPrefix(file.Final, "/etc/apt/") {
				os.Remove(file.Local)
			}
		}
	}()

	var sourcesFile *AdditionalFileInfo
	for i, file := range recipe.SystemConfig.AdditionalFiles {
		if file.Final == "/etc/apt/sources.list.d/package-repositories.list" {
			sourcesFile = &recipe.SystemConfig.AdditionalFiles[i]
			break
		}
	}
	if sourcesFile == nil {
		t.Fatal("Apt sources file was not added to additionalFiles")
	}

	content, err := os.ReadFile(sourcesFile.Local)
	if err != nil {
		t.Fatalf("Failed to read apt sources file: %v", err)
	}
	contentStr := string(content)

	expectedLines := []string{
		"# Package repositories generated from build recipe configuration",
		"deb [signed-by=/usr/share/keyrings/GPG-PUB-KEY-INTEL-SED.gpg] https://eci.intel.com/sed-repos/noble sed main",
		"deb [signed-by=/usr/share/keyrings/GPG-PUB-KEY-INTEL-SW-PRODUCTS.PUB.gpg] https://apt.repos.intel.com/openvino/2025 ubuntu24 main contrib",
	}
	for _, expectedLine := range expectedLines {
		if !strings.Contains(contentStr, expectedLine) {
			t.Errorf("Generated apt sources file missing expected line: %q\nActual content:\n%s", expectedLine, contentStr)
		}
	}
}

// TestAptPreferencesGeneration tests that every repository gets a pin file,
// with default priority 500 when unset.
func TestAptPreferencesGeneration(t *testing.T) {
	recipe := &BuildRecipe{
		Target: TargetInfo{OS: "ubuntu"},
		PackageRepositories: []PackageRepository{
			{
				ID:       "sed-repo",
				Codename: "sed",
				URL:      "https://eci.intel.com/sed-repos/noble",
				Priority: 1000,
			},
			{
				// Repository without ID or priority falls back to codename and 500
				Codename: "no-priority-repo",
				URL:      "https://example.com/repo",
			},
		},
		SystemConfig: SystemConfig{Name: "test-minimal"},
	}

	err := recipe.GenerateAptSourcesFromRepositories()
	if err != nil {
		t.Fatalf("Failed to generate apt sources and preferences: %v", err)
	}

	defer func() {
		for _, file := range recipe.SystemConfig.AdditionalFiles {
			os.Remove(file.Local)
		}
	}()

	// 1 sources file + 2 preferences files
	if len(recipe.SystemConfig.AdditionalFiles) != 3 {
		t.Errorf("Expected 3 additional files, got %d", len(recipe.SystemConfig.AdditionalFiles))
	}

	var sedPrefs, noPriorityPrefs *AdditionalFileInfo
	for i, file := range recipe.SystemConfig.AdditionalFiles {
		switch file.Final {
		case "/etc/apt/preferences.d/sed-repo":
			sedPrefs = &recipe.SystemConfig.AdditionalFiles[i]
		case "/etc/apt/preferences.d/no-priority-repo":
			noPriorityPrefs = &recipe.SystemConfig.AdditionalFiles[i]
		}
	}

	if sedPrefs == nil {
		t.Fatal("sed-repo preferences file not found in additionalFiles")
	}
	sedContent, err := os.ReadFile(sedPrefs.Local)
	if err != nil {
		t.Fatalf("Failed to read sed-repo preferences file: %v", err)
	}
	expectedSed := "# Priority 1000: Install even if version is lower than installed\nPackage: *\nPin: origin eci.intel.com\nPin-Priority: 1000\n"
	if string(sedContent) != expectedSed {
		t.Errorf("sed-repo preferences content mismatch.\nExpected:\n%s\nGot:\n%s", expectedSed, string(sedContent))
	}

	if noPriorityPrefs == nil {
		t.Fatal("no-priority-repo preferences file not found in additionalFiles")
	}
	noPriorityContent, err := os.ReadFile(noPriorityPrefs.Local)
	if err != nil {
		t.Fatalf("Failed to read no-priority preferences file: %v", err)
	}
	expectedNoPriority := "# Priority 500: Default\nPackage: *\nPin: origin example.com\nPin-Priority: 500\n"
	if string(noPriorityContent) != expectedNoPriority {
		t.Errorf("no-priority preferences content mismatch.\nExpected:\n%s\nGot:\n%s", expectedNoPriority, string(noPriorityContent))
	}
}

// TestAptSourcesRPMTarget tests that nothing happens for rpm-based targets.
func TestAptSourcesRPMTarget(t *testing.T) {
	recipe := &BuildRecipe{
		Target: TargetInfo{OS: "azure-linux"},
		PackageRepositories: []PackageRepository{
			{Codename: "stable", URL: "https://example.com/repo"},
		},
		SystemConfig: SystemConfig{AdditionalFiles: []AdditionalFileInfo{}},
	}

	if err := recipe.GenerateAptSourcesFromRepositories(); err != nil {
		t.Fatalf("Failed to generate apt sources: %v", err)
	}
	if len(recipe.SystemConfig.AdditionalFiles) != 0 {
		t.Errorf("Expected no additional files for rpm target, got %d", len(recipe.SystemConfig.AdditionalFiles))
	}
}

// TestAptSourcesEmptyRepositories tests behavior with no repositories.
func TestAptSourcesEmptyRepositories(t *testing.T) {
	recipe := &BuildRecipe{
		Target:              TargetInfo{OS: "ubuntu"},
		PackageRepositories: []PackageRepository{},
		SystemConfig:        SystemConfig{AdditionalFiles: []AdditionalFileInfo{}},
	}

	if err := recipe.GenerateAptSourcesFromRepositories(); err != nil {
		t.Fatalf("Failed to generate apt sources: %v", err)
	}
	if len(recipe.SystemConfig.AdditionalFiles) != 0 {
		t.Errorf("Expected no additional files for empty repositories, got %d", len(recipe.SystemConfig.AdditionalFiles))
	}
}

// TestAptSourcesReplacesExistingFile tests that an existing generated sources
// entry is replaced, not duplicated.
func TestAptSourcesReplacesExistingFile(t *testing.T) {
	recipe := &BuildRecipe{
		Target: TargetInfo{OS: "ubuntu"},
		PackageRepositories: []PackageRepository{
			{Codename: "stable", URL: "https://example.com/repo"},
		},
		SystemConfig: SystemConfig{
			AdditionalFiles: []AdditionalFileInfo{
				{Local: "/tmp/existing-sources.list", Final: "/etc/apt/sources.list.d/package-repositories.list"},
			},
		},
	}

	if err := recipe.GenerateAptSourcesFromRepositories(); err != nil {
		t.Fatalf("Failed to generate apt sources: %v", err)
	}

	defer func() {
		for _, file := range recipe.SystemConfig.AdditionalFiles {
			if file.Local != "/tmp/existing-sources.list" {
				os.Remove(file.Local)
			}
		}
	}()

	// 1 replaced sources entry + 1 new preferences entry
	if len(recipe.SystemConfig.AdditionalFiles) != 2 {
		t.Errorf("Expected 2 files after replacement, got %d", len(recipe.SystemConfig.AdditionalFiles))
	}

	for _, file := range recipe.SystemConfig.AdditionalFiles {
		if file.Final == "/etc/apt/sources.list.d/package-repositories.list" {
			if file.Local == "/tmp/existing-sources.list" {
				t.Error("Sources file was not replaced - local path is still the old one")
			}
		}
	}
}
