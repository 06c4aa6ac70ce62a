package epub_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"aveline/internal/epub"
	"aveline/internal/testsupport"
)

func TestReadMetadata(t *testing.T) {
	path := testsupport.WriteEPUB(t, filepath.Join(t.TempDir(), "moby.epub"), testsupport.EPUB{
		Title:    "Moby Dick",
		Creator:  "Herman Melville",
		Subjects: []string{"Fiction", "Sea stories"},
		Cover:    testsupport.CoverPNG(t, 4, 6),
		NCX:      true,
	})

	meta, err := epub.ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Title != "Moby Dick" || meta.Creator != "Herman Melville" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if len(meta.Subjects) != 2 || meta.Subjects[0] != "Fiction" {
		t.Fatalf("subjects = %v", meta.Subjects)
	}
}

func TestReadMetadataMissingFields(t *testing.T) {
	path := testsupport.WriteEPUB(t, filepath.Join(t.TempDir(), "bare.epub"), testsupport.EPUB{})

	meta, err := epub.ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Title != "" || meta.Creator != "" || len(meta.Subjects) != 0 {
		t.Fatalf("expected empty metadata, got %+v", meta)
	}
}

func TestReadMetadataRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.epub")
	if err := os.WriteFile(path, []byte("definitely not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := epub.ReadMetadata(path); err == nil {
		t.Fatal("expected error for non-archive input")
	}
}

func TestReadMetadataWithoutRootfile(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "empty-container.epub")
	testsupport.WriteZip(t, broken, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": `<container><rootfiles></rootfiles></container>`,
	})
	if _, err := epub.ReadMetadata(broken); !errors.Is(err, epub.ErrNoPackage) {
		t.Fatalf("expected ErrNoPackage, got %v", err)
	}
}
