package rpmutils

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/open-edge-platform/container-image-composer/internal/ospackage"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// RepoConfig holds .repo file values.
type RepoConfig struct {
	Section      string // raw section header
	Name         string // human-readable name from name=
	URL          string
	GPGCheck     bool
	RepoGPGCheck bool
	Enabled      bool
	GPGKey       string
}

// LoadRepoConfig parses a dnf/yum .repo configuration stream.
func LoadRepoConfig(r io.Reader) (RepoConfig, error) {
	s := bufio.NewScanner(r)
	var rc RepoConfig
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			rc.Section = strings.Trim(line, "[]")
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "name":
			rc.Name = val
		case "baseurl":
			rc.URL = val
		case "gpgcheck":
			rc.GPGCheck = (val == "1")
		case "repo_gpgcheck":
			rc.RepoGPGCheck = (val == "1")
		case "enabled":
			rc.Enabled = (val == "1")
		case "gpgkey":
			rc.GPGKey = val
		}
	}
	if err := s.Err(); err != nil {
		return rc, err
	}
	return rc, nil
}

// FetchPrimaryURL downloads repomd.xml and returns the href of the primary
// metadata.
func FetchPrimaryURL(repomdURL string) (string, error) {
	resp, err := http.Get(repomdURL)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", repomdURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: bad status %s", repomdURL, resp.Status)
	}
	return ParsePrimaryHref(resp.Body)
}

// ParsePrimaryHref walks repomd.xml tokens looking for
// <data type="primary"><location href=.../>.
func ParsePrimaryHref(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "data" {
			continue
		}
		var isPrimary bool
		for _, attr := range se.Attr {
			if attr.Name.Local == "type" && attr.Value == "primary" {
				isPrimary = true
				break
			}
		}
		if !isPrimary {
			if err := dec.Skip(); err != nil {
				return "", fmt.Errorf("error skipping token: %w", err)
			}
			continue
		}

		for {
			tok2, err := dec.Token()
			if err != nil {
				if err == io.EOF {
					break
				}
				return "", err
			}
			if ee, ok := tok2.(xml.EndElement); ok && ee.Name.Local == "data" {
				break
			}
			if le, ok := tok2.(xml.StartElement); ok && le.Name.Local == "location" {
				for _, attr := range le.Attr {
					if attr.Name.Local == "href" {
						return attr.Value, nil
					}
				}
			}
		}
	}
	return "", fmt.Errorf("primary location not found in repomd.xml")
}

// primaryPackage mirrors the parts of a primary.xml <package> entry we index.
type primaryPackage struct {
	Type     string `xml:"type,attr"`
	Name     string `xml:"name"`
	Arch     string `xml:"arch"`
	Version  struct {
		Ver string `xml:"ver,attr"`
		Rel string `xml:"rel,attr"`
	} `xml:"version"`
	Checksum struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"checksum"`
	Location struct {
		Href string `xml:"href,attr"`
	} `xml:"location"`
	Format struct {
		Provides struct {
			Entries []rpmEntry `xml:"entry"`
		} `xml:"provides"`
		Requires struct {
			Entries []rpmEntry `xml:"entry"`
		} `xml:"requires"`
		Files []string `xml:"file"`
	} `xml:"format"`
}

type rpmEntry struct {
	Name string `xml:"name,attr"`
}

// ParsePrimary downloads and parses the gzip-compressed primary.xml package
// index, returning one PackageInfo per rpm.
func ParsePrimary(baseURL string, primaryHref string) ([]ospackage.PackageInfo, error) {
	primaryURL := strings.TrimSuffix(baseURL, "/") + "/" + primaryHref
	resp, err := http.Get(primaryURL)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", primaryURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: bad status %s", primaryURL, resp.Status)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decompressing primary.xml.gz: %w", err)
	}
	defer gz.Close()

	return ParsePrimaryXML(gz, baseURL)
}

// ParsePrimaryXML streams an uncompressed primary.xml document.
func ParsePrimaryXML(r io.Reader, baseURL string) ([]ospackage.PackageInfo, error) {
	var packages []ospackage.PackageInfo
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("parsing primary.xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "package" {
			continue
		}

		var p primaryPackage
		if err := dec.DecodeElement(&p, &se); err != nil {
			return nil, fmt.Errorf("decoding package element: %w", err)
		}
		if p.Type != "" && p.Type != "rpm" {
			continue
		}

		info := ospackage.PackageInfo{
			Name:     p.Name,
			Version:  strings.TrimSuffix(p.Version.Ver+"-"+p.Version.Rel, "-"),
			Arch:     p.Arch,
			URL:      strings.TrimSuffix(baseURL, "/") + "/" + p.Location.Href,
			Checksum: p.Checksum.Value,
			Files:    p.Format.Files,
		}
		info.Provides = append(info.Provides, p.Name)
		for _, e := range p.Format.Provides.Entries {
			info.Provides = append(info.Provides, e.Name)
		}
		for _, e := range p.Format.Requires.Entries {
			// rpmlib() capabilities are installer internals, not packages
			if strings.HasPrefix(e.Name, "rpmlib(") {
				continue
			}
			info.Requires = append(info.Requires, e.Name)
		}
		packages = append(packages, info)
	}
	return packages, nil
}

// MatchRequested takes requested package names and returns matching
// PackageInfo entries, tolerating name-version and name.release forms.
func MatchRequested(requests []string, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error) {
	var out []ospackage.PackageInfo

	for _, want := range requests {
		var candidates []ospackage.PackageInfo
		for _, pi := range all {
			if pi.Name == want {
				candidates = append(candidates, pi)
				break
			}
			if strings.HasPrefix(pi.Name, want+"-") || strings.HasPrefix(pi.Name, want+".") {
				candidates = append(candidates, pi)
			}
		}

		if len(candidates) == 0 {
			return nil, fmt.Errorf("requested package %q not found in repo", want)
		}
		if len(candidates) == 1 && candidates[0].Name == want {
			out = append(out, candidates[0])
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Name > candidates[j].Name
		})
		out = append(out, candidates[0])
	}
	return out, nil
}

// Resolve walks dependencies and returns the full closure of rpms needed.
func Resolve(requested []ospackage.PackageInfo, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error) {
	log := logger.Logger()
	log.Infof("resolving dependencies for %d RPMs", len(requested))

	needed, err := ospackage.ResolvePackageInfos(requested, all)
	if err != nil {
		log.Errorf("resolving dependencies failed: %v", err)
		return nil, err
	}
	log.Infof("need a total of %d RPMs (including dependencies)", len(needed))
	return needed, nil
}
