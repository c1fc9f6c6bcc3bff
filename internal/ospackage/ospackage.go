package ospackage

// PackageInfo holds everything you need to fetch + verify one artifact.
type PackageInfo struct {
	Name     string   // e.g. "tesseract-ocr"
	Version  string   // e.g. "5.3.0-2"
	Arch     string   // e.g. "x86_64", "noarch", "all"
	URL      string   // download URL
	Checksum string   // optional pre-known sha256 digest
	Provides []string // capabilities this package provides
	Requires []string // capabilities this package requires
	Files    []string // list of files in this package
}
