package rpmutils

import (
	"fmt"
	"os"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	gorpm "github.com/sassoftware/go-rpmutils"
)

// VerifyResult holds the outcome of one rpm signature check.
type VerifyResult struct {
	Path  string
	OK    bool
	Error error
}

// LoadKeyring reads a GPG public keyring, accepting armored and binary
// formats.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring %s: %w", path, err)
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		if _, seekErr := f.Seek(0, 0); seekErr != nil {
			return nil, fmt.Errorf("rewind keyring %s: %w", path, seekErr)
		}
		keyring, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return nil, fmt.Errorf("read keyring %s: %w", path, err)
		}
	}
	return keyring, nil
}

// VerifyOne checks the GPG signature of a single rpm against the keyring.
func VerifyOne(path string, keyring openpgp.EntityList) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rpm %s: %w", path, err)
	}
	defer f.Close()

	if _, _, err := gorpm.Verify(f, keyring); err != nil {
		return fmt.Errorf("verify rpm %s: %w", path, err)
	}
	return nil
}

// VerifyAll verifies rpm signatures with a pool of workers and returns one
// result per path.
func VerifyAll(paths []string, keyringPath string, workers int) []VerifyResult {
	results := make([]VerifyResult, len(paths))

	keyring, err := LoadKeyring(keyringPath)
	if err != nil {
		for i, p := range paths {
			results[i] = VerifyResult{Path: p, OK: false, Error: err}
		}
		return results
	}

	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int, len(paths))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				err := VerifyOne(paths[i], keyring)
				results[i] = VerifyResult{Path: paths[i], OK: err == nil, Error: err}
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// ReadMetadata extracts the identity headers of a local rpm file.
func ReadMetadata(path string) (name, version, arch string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", "", fmt.Errorf("open rpm %s: %w", path, err)
	}
	defer f.Close()

	rpm, err := gorpm.ReadRpm(f)
	if err != nil {
		return "", "", "", fmt.Errorf("read rpm %s: %w", path, err)
	}
	if name, err = rpm.Header.GetString(gorpm.NAME); err != nil {
		return "", "", "", fmt.Errorf("rpm %s: missing name header: %w", path, err)
	}
	if version, err = rpm.Header.GetString(gorpm.VERSION); err != nil {
		return "", "", "", fmt.Errorf("rpm %s: missing version header: %w", path, err)
	}
	if arch, err = rpm.Header.GetString(gorpm.ARCH); err != nil {
		return "", "", "", fmt.Errorf("rpm %s: missing arch header: %w", path, err)
	}
	return name, version, arch, nil
}
