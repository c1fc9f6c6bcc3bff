package pydeps

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseRequirements(t *testing.T) {
	manifest := `# web framework
fastapi==0.110.0
uvicorn[standard]==0.27.1
httpx==0.26.0  # callbacks
pytesseract==0.3.10
passporteye==2.2.2
psycopg2-binary==2.9.9
playwright==1.41.2 ; python_version >= "3.8"
Pillow==10.2.0

`
	reqs, err := ParseRequirements(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("ParseRequirements failed: %v", err)
	}

	if len(reqs) != 8 {
		t.Fatalf("Expected 8 requirements, got %d", len(reqs))
	}

	if reqs[0].Name != "fastapi" || reqs[0].Version != "0.110.0" {
		t.Errorf("Unexpected first requirement: %+v", reqs[0])
	}

	uvicorn := reqs[1]
	if uvicorn.Name != "uvicorn" || !reflect.DeepEqual(uvicorn.Extras, []string{"standard"}) {
		t.Errorf("Expected uvicorn with standard extra, got %+v", uvicorn)
	}

	if reqs[2].Version != "0.26.0" {
		t.Errorf("Inline comment not stripped: %+v", reqs[2])
	}

	playwright := reqs[6]
	if playwright.Name != "playwright" || playwright.Marker != `python_version >= "3.8"` {
		t.Errorf("Expected playwright with marker, got %+v", playwright)
	}

	// Pillow must be normalized to lowercase
	if reqs[7].Name != "pillow" {
		t.Errorf("Expected normalized name pillow, got %q", reqs[7].Name)
	}
}

func TestParseRequirementsRejects(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"range pin", "fastapi>=0.100\n"},
		{"compatible release", "fastapi~=0.110\n"},
		{"unpinned", "fastapi\n"},
		{"option line", "-r other.txt\n"},
		{"index option", "--index-url https://example.com/simple\n"},
		{"upper bound after pin", "fastapi==0.110.0,<1.0\n"},
		{"malformed extras", "uvicorn[standard==0.27.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRequirements(strings.NewReader(tt.manifest)); err == nil {
				t.Errorf("Expected error for %q", tt.manifest)
			}
		})
	}
}

func TestParseRequirementsContinuation(t *testing.T) {
	manifest := "uvicorn[standard]==\\\n0.27.1\n"
	reqs, err := ParseRequirements(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("ParseRequirements failed: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Version != "0.27.1" {
		t.Errorf("Continuation line not joined: %+v", reqs)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"Pillow":          "pillow",
		"psycopg2_binary": "psycopg2-binary",
		"zope.interface":  "zope-interface",
		"A__B--C..D":      "a-b-c-d",
		"  fastapi  ":     "fastapi",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func FuzzParseRequirements(f *testing.F) {
	f.Add("fastapi==0.110.0\n")
	f.Add("uvicorn[standard]==0.27.1 ; python_version >= \"3.8\"\n")
	f.Add("# comment only\n")
	f.Add("====\n")
	f.Add("a==b==c\n")
	f.Add("pkg==1.0\\")

	f.Fuzz(func(t *testing.T, manifest string) {
		// Must not panic; error or success both acceptable
		_, _ = ParseRequirements(strings.NewReader(manifest))
	})
}
