package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const containerPath = "META-INF/container.xml"

// ErrNoPackage reports an archive without a usable OPF rootfile.
var ErrNoPackage = errors.New("epub: package document not found")

// Metadata holds the OPF fields the library cares about.
type Metadata struct {
	Title    string
	Creator  string
	Subjects []string
}

type container struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest []opfItem   `xml:"manifest>item"`
	Spine    opfSpine    `xml:"spine"`
}

type opfSpine struct {
	TOC string `xml:"toc,attr"`
}

type opfMetadata struct {
	Titles   []string `xml:"title"`
	Creators []string `xml:"creator"`
	Subjects []string `xml:"subject"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// archive is an opened EPUB with its parsed package document.
type archive struct {
	zip     *zip.ReadCloser
	opfPath string
	pkg     opfPackage
}

func openArchive(filePath string) (*archive, error) {
	rc, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	a := &archive{zip: rc}

	var c container
	if err := a.decode(containerPath, &c); err != nil {
		rc.Close()
		return nil, fmt.Errorf("read container: %w", err)
	}
	for _, root := range c.Rootfiles {
		if root.FullPath != "" {
			a.opfPath = root.FullPath
			break
		}
	}
	if a.opfPath == "" {
		rc.Close()
		return nil, ErrNoPackage
	}
	if err := a.decode(a.opfPath, &a.pkg); err != nil {
		rc.Close()
		return nil, fmt.Errorf("read package %s: %w", a.opfPath, err)
	}
	return a, nil
}

func (a *archive) Close() error {
	return a.zip.Close()
}

func (a *archive) open(name string) (io.ReadCloser, error) {
	for _, f := range a.zip.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrEntryNotFound)
}

// ErrEntryNotFound reports a missing archive member.
var ErrEntryNotFound = errors.New("entry not in archive")

func (a *archive) decode(name string, v any) error {
	r, err := a.open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	dec := newDecoder(r)
	return dec.Decode(v)
}

func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec
}

// packageDir is the archive directory holding the OPF, "" at the root.
func (a *archive) packageDir() string {
	dir := path.Dir(a.opfPath)
	if dir == "." {
		return ""
	}
	return dir
}

// resolve turns a manifest href into an archive path.
func (a *archive) resolve(href string) string {
	return path.Join(a.packageDir(), stripFragment(href))
}

func (a *archive) item(match func(opfItem) bool) (opfItem, bool) {
	for _, it := range a.pkg.Manifest {
		if match(it) {
			return it, true
		}
	}
	return opfItem{}, false
}

func (a *archive) metadata() Metadata {
	m := a.pkg.Metadata
	meta := Metadata{
		Title:   firstNonEmpty(m.Titles),
		Creator: firstNonEmpty(m.Creators),
	}
	for _, s := range m.Subjects {
		if s = strings.TrimSpace(s); s != "" {
			meta.Subjects = append(meta.Subjects, s)
		}
	}
	return meta
}

// ReadMetadata opens the archive at filePath and returns its package metadata.
func ReadMetadata(filePath string) (Metadata, error) {
	a, err := openArchive(filePath)
	if err != nil {
		return Metadata{}, err
	}
	defer a.Close()
	return a.metadata(), nil
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func hasProperty(props, want string) bool {
	for _, p := range strings.Fields(props) {
		if p == want {
			return true
		}
	}
	return false
}

func stripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}
