package testsupport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// EPUB describes a synthetic book written by WriteEPUB. Empty metadata fields
// are left out of the OPF document.
type EPUB struct {
	Title    string
	Creator  string
	Subjects []string
	// Cover is stored at CoverPath when non-nil.
	Cover     []byte
	CoverPath string
	// NCX and Nav select which table of contents documents are written.
	NCX bool
	Nav bool
	// Extra holds additional archive members keyed by path.
	Extra map[string]string
}

// WriteEPUB writes a minimal EPUB archive to path. Content documents live under
// OEBPS/ with chapters ch1.xhtml and ch2.xhtml; the TOC nests section 1.1
// under chapter 1.
func WriteEPUB(t testing.TB, path string, book EPUB) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	add := func(name string, data []byte) {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	add("mimetype", []byte("application/epub+zip"))
	add("META-INF/container.xml", []byte(containerXML))
	add("OEBPS/content.opf", []byte(book.opf()))
	add("OEBPS/ch1.xhtml", []byte(chapterXHTML("Chapter 1")))
	add("OEBPS/ch2.xhtml", []byte(chapterXHTML("Chapter 2")))
	if book.NCX {
		add("OEBPS/toc.ncx", []byte(ncxXML))
	}
	if book.Nav {
		add("OEBPS/nav.xhtml", []byte(navXHTML))
	}
	if book.Cover != nil {
		add(book.coverPath(), book.Cover)
	}
	for name, body := range book.Extra {
		add(name, []byte(body))
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return path
}

func (b EPUB) coverPath() string {
	if b.CoverPath != "" {
		return b.CoverPath
	}
	return "OEBPS/images/cover.png"
}

func (b EPUB) opf() string {
	var meta strings.Builder
	if b.Title != "" {
		fmt.Fprintf(&meta, "    <dc:title>%s</dc:title>\n", b.Title)
	}
	if b.Creator != "" {
		fmt.Fprintf(&meta, "    <dc:creator>%s</dc:creator>\n", b.Creator)
	}
	for _, s := range b.Subjects {
		fmt.Fprintf(&meta, "    <dc:subject>%s</dc:subject>\n", s)
	}

	var manifest strings.Builder
	manifest.WriteString(`    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>` + "\n")
	manifest.WriteString(`    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>` + "\n")
	spineTOC := ""
	if b.NCX {
		manifest.WriteString(`    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>` + "\n")
		spineTOC = ` toc="ncx"`
	}
	if b.Nav {
		manifest.WriteString(`    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n")
	}
	if b.Cover != nil {
		href := strings.TrimPrefix(b.coverPath(), "OEBPS/")
		fmt.Fprintf(&manifest, `    <item id="cover-img" href="%s" media-type="image/png" properties="cover-image"/>`+"\n", href)
	}

	return `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="uid">urn:uuid:fixture</dc:identifier>
    <dc:language>en</dc:language>
` + meta.String() + `  </metadata>
  <manifest>
` + manifest.String() + `  </manifest>
  <spine` + spineTOC + `>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>
`
}

// CoverPNG returns a solid PNG image of the requested size.
func CoverPNG(t testing.TB, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 0x33, G: 0x66, B: 0x99, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func chapterXHTML(title string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>` + title + `</title></head>
<body><h1 id="start">` + title + `</h1><h2 id="s1">Section</h2></body></html>
`
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const ncxXML = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="np-1" playOrder="1">
      <navLabel><text>Chapter 1</text></navLabel>
      <content src="ch1.xhtml"/>
      <navPoint id="np-1-1" playOrder="2">
        <navLabel><text>Section 1.1</text></navLabel>
        <content src="ch1.xhtml#s1"/>
      </navPoint>
    </navPoint>
    <navPoint id="np-2" playOrder="3">
      <navLabel><text>Chapter 2</text></navLabel>
      <content src="ch2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>
`

const navXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
  <nav epub:type="landmarks"><ol><li><a href="ch2.xhtml">Landmark</a></li></ol></nav>
  <nav epub:type="toc" id="toc">
    <h1>Contents</h1>
    <ol>
      <li id="nav-ch1"><a href="ch1.xhtml">Chapter&nbsp;<span>One</span></a>
        <ol>
          <li><a href="ch1.xhtml#s1">Section 1.1</a></li>
        </ol>
      </li>
      <li><a href="ch2.xhtml">Chapter Two</a></li>
    </ol>
  </nav>
</body>
</html>
`
