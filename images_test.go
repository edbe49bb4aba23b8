package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func countLabels(images []Image) (real, ai int) {
	for _, img := range images {
		switch img.Type {
		case LabelReal:
			real++
		case LabelAI:
			ai++
		}
	}

	return real, ai
}

func TestScanImages(t *testing.T) {
	root := t.TempDir()

	for dir, names := range map[string][]string{
		"real": {"beach.jpg", "city.PNG", "notes.txt"},
		"ai":   {"render.webp"},
	} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(root, dir, name), []byte("x"), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
	}

	catalog, err := scanImages(root)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	real, ai := countLabels(catalog)
	if real != 2 || ai != 1 {
		t.Fatalf("expected 2 real and 1 ai, got %d and %d", real, ai)
	}

	for _, img := range catalog {
		if img.ID == "" || img.Src == "" || img.Alt == "" {
			t.Fatalf("incomplete entry: %+v", img)
		}
		if filepath.Ext(img.Src) == ".txt" {
			t.Fatalf("non-image file scanned: %+v", img)
		}
	}
}

func TestScanImagesMissingDirectories(t *testing.T) {
	catalog, err := scanImages(t.TempDir())
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(catalog) != 0 {
		t.Fatalf("expected empty catalog, got %d entries", len(catalog))
	}
}

func TestSelectImagesBalance(t *testing.T) {
	catalog := testCatalog(20, 20)

	selection, err := selectImages(catalog, 12, nil)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(selection) != 12 {
		t.Fatalf("expected 12 images, got %d", len(selection))
	}

	real, ai := countLabels(selection)
	if real != 6 || ai != 6 {
		t.Fatalf("expected an even split, got %d real and %d ai", real, ai)
	}

	selection, err = selectImages(catalog, 13, nil)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}

	real, ai = countLabels(selection)
	diff := real - ai
	if diff < 0 {
		diff = -diff
	}
	if len(selection) != 13 || diff != 1 {
		t.Fatalf("odd count should split within one: %d real, %d ai", real, ai)
	}
}

func TestSelectImagesUnique(t *testing.T) {
	selection, err := selectImages(testCatalog(10, 10), 12, nil)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}

	seen := map[string]bool{}
	for _, img := range selection {
		if seen[img.ID] {
			t.Fatalf("duplicate image %s", img.ID)
		}
		seen[img.ID] = true
	}
}

func TestSelectImagesHonorsExclusions(t *testing.T) {
	catalog := testCatalog(12, 12)
	exclude := []string{"real-0", "real-1", "ai-0"}

	selection, err := selectImages(catalog, 12, exclude)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}

	for _, img := range selection {
		for _, id := range exclude {
			if img.ID == id {
				t.Fatalf("excluded image %s selected", id)
			}
		}
	}
}

func TestSelectImagesResetsWhenExclusionsExhaust(t *testing.T) {
	catalog := testCatalog(6, 6)

	// excluding any image leaves too few; the exclusion list is discarded
	selection, err := selectImages(catalog, 12, []string{"real-0"})
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(selection) != 12 {
		t.Fatalf("expected the full catalog back, got %d images", len(selection))
	}
}

func TestSelectImagesInsufficient(t *testing.T) {
	_, err := selectImages(testCatalog(2, 2), 12, nil)
	if !errors.Is(err, ErrInsufficientImages) {
		t.Fatalf("expected ErrInsufficientImages, got %v", err)
	}
}

func TestSanitizedStripsLabel(t *testing.T) {
	img := Image{ID: "real-0", Src: "/images/real/0.jpg", Type: LabelReal, Alt: "Real image 1"}

	clean := img.sanitized()
	if clean.Type != "" {
		t.Fatalf("label survived: %q", clean.Type)
	}
	if clean.ID != img.ID || clean.Src != img.Src || clean.Alt != img.Alt {
		t.Fatalf("sanitize altered other fields: %+v", clean)
	}
	if img.Type != LabelReal {
		t.Fatal("sanitize mutated the original")
	}
}
