package slice

import (
	"reflect"
	"testing"
)

func TestContains(t *testing.T) {
	items := []string{"tesseract-ocr", "chromium", "libpq5"}
	if !Contains(items, "chromium") {
		t.Error("Expected chromium to be found")
	}
	if Contains(items, "firefox") {
		t.Error("Did not expect firefox to be found")
	}
	if Contains(nil, "anything") {
		t.Error("Nil slice contains nothing")
	}
}

func TestDedup(t *testing.T) {
	got := Dedup([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedup = %v, want %v", got, want)
	}

	if got := Dedup(nil); got != nil {
		t.Errorf("Expected nil for nil input, got %v", got)
	}
}
