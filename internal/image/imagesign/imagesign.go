package imagesign

import (
	"bytes"
	"crypto"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// SignatureFileName is the detached signature placed next to index.json in
// a signed image layout.
const SignatureFileName = "index.json.asc"

// Signer produces armored detached signatures over image layout indexes.
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner loads a private key from keyPath. Armored and binary keyrings
// are both accepted; passphrase may be empty for unprotected keys.
func NewSigner(keyPath, passphrase string) (*Signer, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("signing key path is empty")
	}

	keyFile, err := os.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("opening signing key: %w", err)
	}
	defer keyFile.Close()

	entities, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		if _, serr := keyFile.Seek(0, 0); serr != nil {
			return nil, fmt.Errorf("rewinding signing key: %w", serr)
		}
		entities, err = openpgp.ReadKeyRing(keyFile)
		if err != nil {
			return nil, fmt.Errorf("reading signing key: %w", err)
		}
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found in %s", keyPath)
	}

	entity := entities[0]
	if passphrase != "" {
		if entity.PrivateKey != nil && entity.PrivateKey.Encrypted {
			if err := entity.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
				return nil, fmt.Errorf("decrypting private key: %w", err)
			}
		}
		for _, subkey := range entity.Subkeys {
			if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
				if err := subkey.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
					return nil, fmt.Errorf("decrypting subkey: %w", err)
				}
			}
		}
	}

	return &Signer{entity: entity}, nil
}

// SignDetached returns an armored detached signature over data.
func (s *Signer) SignDetached(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(data), &packet.Config{
		DefaultHash: crypto.SHA512,
	})
	if err != nil {
		return nil, fmt.Errorf("creating detached signature: %w", err)
	}
	return buf.Bytes(), nil
}

// SignLayout signs layoutDir/index.json and writes the signature alongside.
func (s *Signer) SignLayout(layoutDir string) error {
	indexPath := filepath.Join(layoutDir, "index.json")
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return fmt.Errorf("reading layout index: %w", err)
	}

	sig, err := s.SignDetached(data)
	if err != nil {
		return err
	}

	sigPath := filepath.Join(layoutDir, SignatureFileName)
	if err := os.WriteFile(sigPath, sig, 0644); err != nil {
		return fmt.Errorf("writing layout signature: %w", err)
	}

	logger.Logger().Infof("Signed image layout index: %s", sigPath)
	return nil
}

// VerifyLayout checks the detached signature over layoutDir/index.json
// against the public keyring at keyringPath.
func VerifyLayout(layoutDir, keyringPath string) error {
	keyFile, err := os.Open(keyringPath)
	if err != nil {
		return fmt.Errorf("opening verification keyring: %w", err)
	}
	defer keyFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		if _, serr := keyFile.Seek(0, 0); serr != nil {
			return fmt.Errorf("rewinding verification keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(keyFile)
		if err != nil {
			return fmt.Errorf("reading verification keyring: %w", err)
		}
	}

	index, err := os.Open(filepath.Join(layoutDir, "index.json"))
	if err != nil {
		return fmt.Errorf("reading layout index: %w", err)
	}
	defer index.Close()

	sig, err := os.Open(filepath.Join(layoutDir, SignatureFileName))
	if err != nil {
		return fmt.Errorf("reading layout signature: %w", err)
	}
	defer sig.Close()

	if _, err := openpgp.CheckArmoredDetachedSignature(keyring, index, sig, nil); err != nil {
		return fmt.Errorf("layout signature verification failed: %w", err)
	}
	return nil
}
