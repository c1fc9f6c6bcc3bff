package pkgfetcher

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
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// Artifact is one file to download, with an optional expected sha256 digest.
type Artifact struct {
	URL    string
	SHA256 string
}

// FetchArtifacts downloads the given artifacts into destDir using a pool of
// workers, showing a single progress bar tracking files completed vs total.
// Any failed or corrupt download fails the whole fetch; the build has no
// partial-success mode.
func FetchArtifacts(artifacts []Artifact, destDir string, workers int) error {
	log := logger.Logger()

	total := len(artifacts)
	if total == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating destination directory %s: %w", destDir, err)
	}

	jobs := make(chan Artifact, total)
	errs := make(chan error, total)
	var wg sync.WaitGroup

	bar := progressbar.NewOptions(total,
		progressbar.OptionFullWidth(),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for artifact := range jobs {
				name := path.Base(artifact.URL)
				bar.Describe(fmt.Sprintf("downloading %s", name))

				destPath := filepath.Join(destDir, name)
				if err := fetchOne(artifact, destPath); err != nil {
					log.Errorf("downloading %s failed: %v", artifact.URL, err)
					errs <- fmt.Errorf("downloading %s: %w", artifact.URL, err)
				} else {
					logger.GlobalFetchReport.Record(artifact.URL)
				}
				bar.Add(1)
			}
		}()
	}

	for _, a := range artifacts {
		jobs <- a
	}
	close(jobs)

	wg.Wait()
	bar.Finish()
	close(errs)

	var failures []string
	for err := range errs {
		failures = append(failures, err.Error())
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d downloads failed: %s", len(failures), total, strings.Join(failures, "; "))
	}
	return nil
}

// FetchFile downloads a single artifact to an explicit destination path.
func FetchFile(artifact Artifact, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", destPath, err)
	}
	return fetchOne(artifact, destPath)
}

func fetchOne(artifact Artifact, destPath string) error {
	resp, err := http.Get(artifact.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), resp.Body); err != nil {
		return err
	}

	if artifact.SHA256 != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, artifact.SHA256) {
			os.Remove(destPath)
			return fmt.Errorf("sha256 mismatch: expected %s, got %s", artifact.SHA256, got)
		}
	}
	return nil
}
