package pydeps

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/open-edge-platform/container-image-composer/internal/pkgfetcher"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// DefaultIndexURL is the public package index queried when the recipe does
// not name one.
const DefaultIndexURL = "https://pypi.org/pypi"

// IndexClient resolves pinned requirements to downloadable artifacts via the
// package index JSON API.
type IndexClient struct {
	BaseURL string
	Client  *http.Client
}

// NewIndexClient returns a client for the given index, or the default index
// when baseURL is empty.
func NewIndexClient(baseURL string) *IndexClient {
	if baseURL == "" {
		baseURL = DefaultIndexURL
	}
	return &IndexClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  http.DefaultClient,
	}
}

// releaseResponse mirrors the index JSON API response for one release.
type releaseResponse struct {
	URLs []releaseFile `json:"urls"`
}

type releaseFile struct {
	Filename    string            `json:"filename"`
	URL         string            `json:"url"`
	PackageType string            `json:"packagetype"`
	Digests     map[string]string `json:"digests"`
	Yanked      bool              `json:"yanked"`
}

// Resolve maps one pinned requirement to a fetchable artifact. Wheels are
// preferred over sdists; universal wheels over platform wheels.
func (c *IndexClient) Resolve(req Requirement) (pkgfetcher.Artifact, error) {
	url := fmt.Sprintf("%s/%s/%s/json", c.BaseURL, req.Name, req.Version)

	resp, err := c.Client.Get(url)
	if err != nil {
		return pkgfetcher.Artifact{}, fmt.Errorf("querying index for %s==%s: %w", req.Name, req.Version, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return pkgfetcher.Artifact{}, fmt.Errorf("%s==%s not found on index", req.Name, req.Version)
	}
	if resp.StatusCode != http.StatusOK {
		return pkgfetcher.Artifact{}, fmt.Errorf("querying index for %s==%s: bad status %s", req.Name, req.Version, resp.Status)
	}

	var release releaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return pkgfetcher.Artifact{}, fmt.Errorf("decoding index response for %s==%s: %w", req.Name, req.Version, err)
	}

	file, err := selectReleaseFile(release.URLs)
	if err != nil {
		return pkgfetcher.Artifact{}, fmt.Errorf("%s==%s: %w", req.Name, req.Version, err)
	}

	return pkgfetcher.Artifact{
		URL:    file.URL,
		SHA256: file.Digests["sha256"],
	}, nil
}

// ResolveAll resolves every requirement in the manifest, failing on the
// first one the index cannot satisfy.
func (c *IndexClient) ResolveAll(reqs []Requirement) ([]pkgfetcher.Artifact, error) {
	log := logger.Logger()

	artifacts := make([]pkgfetcher.Artifact, 0, len(reqs))
	for _, req := range reqs {
		artifact, err := c.Resolve(req)
		if err != nil {
			return nil, err
		}
		log.Debugf("resolved %s==%s -> %s", req.Name, req.Version, artifact.URL)
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

func selectReleaseFile(files []releaseFile) (releaseFile, error) {
	var universalWheel, anyWheel, sdist *releaseFile

	for i := range files {
		f := &files[i]
		if f.Yanked {
			continue
		}
		switch f.PackageType {
		case "bdist_wheel":
			if strings.HasSuffix(f.Filename, "-py3-none-any.whl") && universalWheel == nil {
				universalWheel = f
			}
			if anyWheel == nil {
				anyWheel = f
			}
		case "sdist":
			if sdist == nil {
				sdist = f
			}
		}
	}

	switch {
	case universalWheel != nil:
		return *universalWheel, nil
	case anyWheel != nil:
		return *anyWheel, nil
	case sdist != nil:
		return *sdist, nil
	default:
		return releaseFile{}, fmt.Errorf("no downloadable files in release")
	}
}
