package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
)

const (
	aptSourcesFinalPath = "/etc/apt/sources.list.d/package-repositories.list"
	aptPreferencesDir   = "/etc/apt/preferences.d"
	defaultPinPriority  = 500
)

// GenerateAptSourcesFromRepositories renders the recipe's package
// repositories into an apt sources.list.d file plus one preferences.d pin
// file per repository, and registers them as additional files so the builder
// copies them into the image before package installation. Non-deb targets
// are left untouched.
func (r *BuildRecipe) GenerateAptSourcesFromRepositories() error {
	if !r.IsDebTarget() || len(r.PackageRepositories) == 0 {
		return nil
	}

	var sources strings.Builder
	sources.WriteString("# Package repositories generated from build recipe configuration\n")
	for _, repo := range r.PackageRepositories {
		component := repo.Component
		if component == "" {
			component = "main"
		}
		if repo.PKey != "" {
			fmt.Fprintf(&sources, "deb [signed-by=%s] %s %s %s\n",
				keyringPath(repo.PKey), repo.URL, repo.Codename, component)
		} else {
			fmt.Fprintf(&sources, "deb %s %s %s\n", repo.URL, repo.Codename, component)
		}
	}

	sourcesLocal, err := writeGeneratedFile("apt-sources-*.list", sources.String())
	if err != nil {
		return fmt.Errorf("writing generated apt sources: %w", err)
	}
	r.upsertAdditionalFile(AdditionalFileInfo{Local: sourcesLocal, Final: aptSourcesFinalPath})

	for _, repo := range r.PackageRepositories {
		id := repo.ID
		if id == "" {
			id = repo.Codename
		}
		priority := repo.Priority
		if priority == 0 {
			priority = defaultPinPriority
		}
		prefsLocal, err := writeGeneratedFile("apt-preferences-*", renderPinPreferences(repo.URL, priority))
		if err != nil {
			return fmt.Errorf("writing generated apt preferences for %s: %w", id, err)
		}
		r.upsertAdditionalFile(AdditionalFileInfo{
			Local: prefsLocal,
			Final: path.Join(aptPreferencesDir, id),
		})
	}

	return nil
}

// keyringPath maps a GPG key URL to the keyring file path referenced by the
// signed-by option. Keys not already named *.gpg get the extension appended.
func keyringPath(pkeyURL string) string {
	name := path.Base(pkeyURL)
	if !strings.HasSuffix(name, ".gpg") {
		name += ".gpg"
	}
	return path.Join("/usr/share/keyrings", name)
}

func renderPinPreferences(repoURL string, priority int) string {
	var comment string
	switch {
	case priority >= 1000:
		comment = fmt.Sprintf("# Priority %d: Install even if version is lower than installed", priority)
	case priority == defaultPinPriority:
		comment = fmt.Sprintf("# Priority %d: Default", priority)
	default:
		comment = fmt.Sprintf("# Priority %d: Custom pin", priority)
	}
	return fmt.Sprintf("%s\nPackage: *\nPin: origin %s\nPin-Priority: %d\n",
		comment, repoHost(repoURL), priority)
}

func repoHost(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" {
		return repoURL
	}
	return u.Host
}

func writeGeneratedFile(pattern, content string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// upsertAdditionalFile replaces an existing entry with the same final path,
// otherwise appends.
func (r *BuildRecipe) upsertAdditionalFile(file AdditionalFileInfo) {
	for i, existing := range r.SystemConfig.AdditionalFiles {
		if existing.Final == file.Final {
			r.SystemConfig.AdditionalFiles[i] = file
			return
		}
	}
	r.SystemConfig.AdditionalFiles = append(r.SystemConfig.AdditionalFiles, file)
}
