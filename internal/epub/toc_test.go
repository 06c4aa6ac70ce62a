package epub_test

import (
	"errors"
	"path/filepath"
	"testing"

	"aveline/internal/epub"
	"aveline/internal/testsupport"
)

func TestReadTOCFromNCX(t *testing.T) {
	path := testsupport.WriteEPUB(t, filepath.Join(t.TempDir(), "ncx.epub"), testsupport.EPUB{NCX: true})

	toc, err := epub.ReadTOC(path)
	if err != nil {
		t.Fatalf("ReadTOC: %v", err)
	}
	if len(toc) != 2 {
		t.Fatalf("expected 2 top-level nodes, got %d", len(toc))
	}
	first := toc[0]
	if first.ID != "np-1" || first.Href != "ch1.xhtml" || first.Label != "Chapter 1" || first.Parent != "" {
		t.Fatalf("unexpected first node %+v", first)
	}
	if len(first.Subitems) != 1 {
		t.Fatalf("expected one subitem, got %d", len(first.Subitems))
	}
	sub := first.Subitems[0]
	if sub.Href != "ch1.xhtml#s1" || sub.Parent != "np-1" {
		t.Fatalf("unexpected subitem %+v", sub)
	}
	if toc[1].Subitems == nil {
		t.Fatal("leaf subitems should be an empty list, not nil")
	}
}

func TestReadTOCPrefersNav(t *testing.T) {
	path := testsupport.WriteEPUB(t, filepath.Join(t.TempDir(), "nav.epub"), testsupport.EPUB{NCX: true, Nav: true})

	toc, err := epub.ReadTOC(path)
	if err != nil {
		t.Fatalf("ReadTOC: %v", err)
	}
	if len(toc) != 2 {
		t.Fatalf("expected 2 top-level nodes, got %d", len(toc))
	}
	if toc[0].ID != "nav-ch1" || toc[0].Label != "Chapter One" {
		t.Fatalf("unexpected first node %+v", toc[0])
	}
	if len(toc[0].Subitems) != 1 || toc[0].Subitems[0].Parent != "nav-ch1" {
		t.Fatalf("unexpected subitems %+v", toc[0].Subitems)
	}
	if toc[0].Subitems[0].ID == "" {
		t.Fatal("generated ids must not be empty")
	}
	if toc[1].Label != "Chapter Two" || toc[1].Href != "ch2.xhtml" {
		t.Fatalf("unexpected second node %+v", toc[1])
	}
}

func TestReadTOCMissing(t *testing.T) {
	path := testsupport.WriteEPUB(t, filepath.Join(t.TempDir(), "none.epub"), testsupport.EPUB{})
	if _, err := epub.ReadTOC(path); !errors.Is(err, epub.ErrNoTOC) {
		t.Fatalf("expected ErrNoTOC, got %v", err)
	}
}

func TestFindChapter(t *testing.T) {
	toc := []epub.TOCNode{
		{ID: "a", Href: "a.xhtml", Subitems: []epub.TOCNode{
			{ID: "a1", Href: "a.xhtml#one", Parent: "a"},
			{ID: "a2", Href: "b.xhtml", Parent: "a", Subitems: []epub.TOCNode{
				{ID: "a2x", Href: "c.xhtml", Parent: "a2"},
			}},
		}},
		{ID: "b", Href: "b.xhtml"},
	}

	tests := []struct {
		name string
		href string
		want string
	}{
		{name: "top level", href: "a.xhtml", want: "a"},
		{name: "nested fragment", href: "a.xhtml#one", want: "a1"},
		{name: "depth first wins over later sibling", href: "b.xhtml", want: "a2"},
		{name: "deeply nested", href: "c.xhtml", want: "a2x"},
		{name: "unknown fragment falls back to file", href: "c.xhtml#zzz", want: "a2x"},
		{name: "no match", href: "missing.xhtml", want: ""},
		{name: "empty", href: "", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := epub.FindChapter(toc, tc.href)
			if tc.want == "" {
				if got != nil {
					t.Fatalf("expected no match, got %+v", got)
				}
				return
			}
			if got == nil || got.ID != tc.want {
				t.Fatalf("FindChapter(%q) = %+v, want %s", tc.href, got, tc.want)
			}
		})
	}
}
