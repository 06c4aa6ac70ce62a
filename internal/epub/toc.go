package epub

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// ErrNoTOC reports a package that declares neither a nav document nor an NCX.
var ErrNoTOC = errors.New("epub: table of contents not found")

// TOCNode is one entry of a book's table of contents. Hrefs are relative to
// the package document, which is how reading clients report locations.
type TOCNode struct {
	ID       string    `json:"id"`
	Href     string    `json:"href"`
	Label    string    `json:"label"`
	Subitems []TOCNode `json:"subitems"`
	Parent   string    `json:"parent,omitempty"`
}

// ReadTOC returns the table of contents of the archive at filePath. The EPUB 3
// navigation document wins over the NCX when both are present.
func ReadTOC(filePath string) ([]TOCNode, error) {
	a, err := openArchive(filePath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if nav, ok := a.item(func(it opfItem) bool { return hasProperty(it.Properties, "nav") }); ok {
		nodes, err := a.navTOC(nav)
		if err == nil && len(nodes) > 0 {
			return nodes, nil
		}
	}

	ncx, ok := a.ncxItem()
	if !ok {
		return nil, ErrNoTOC
	}
	return a.ncxTOC(ncx)
}

func (a *archive) ncxItem() (opfItem, bool) {
	if id := a.pkg.Spine.TOC; id != "" {
		if it, ok := a.item(func(it opfItem) bool { return it.ID == id }); ok {
			return it, true
		}
	}
	return a.item(func(it opfItem) bool { return it.MediaType == "application/x-dtbncx+xml" })
}

// relHref rewrites href, relative to the document at docPath, so that it is
// relative to the package directory.
func (a *archive) relHref(docPath, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	file, fragment := href, ""
	if i := strings.IndexByte(href, '#'); i >= 0 {
		file, fragment = href[:i], href[i:]
	}
	if file == "" {
		file = path.Base(docPath)
	}
	full := path.Join(path.Dir(docPath), file)
	if dir := a.packageDir(); dir != "" {
		full = strings.TrimPrefix(full, dir+"/")
	}
	return full + fragment
}

type ncxDoc struct {
	Points []navPoint `xml:"navMap>navPoint"`
}

type navPoint struct {
	ID       string     `xml:"id,attr"`
	Label    string     `xml:"navLabel>text"`
	Content  ncxContent `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

func (a *archive) ncxTOC(item opfItem) ([]TOCNode, error) {
	docPath := a.resolve(item.Href)
	var doc ncxDoc
	if err := a.decode(docPath, &doc); err != nil {
		return nil, fmt.Errorf("read ncx: %w", err)
	}
	var convert func(points []navPoint, parent string) []TOCNode
	convert = func(points []navPoint, parent string) []TOCNode {
		nodes := make([]TOCNode, 0, len(points))
		for _, p := range points {
			node := TOCNode{
				ID:     p.ID,
				Href:   a.relHref(docPath, p.Content.Src),
				Label:  strings.TrimSpace(p.Label),
				Parent: parent,
			}
			node.Subitems = convert(p.Children, node.ID)
			nodes = append(nodes, node)
		}
		return nodes
	}
	return convert(doc.Points, ""), nil
}

type navList struct {
	Items []navItem `xml:"li"`
}

type navItem struct {
	ID     string    `xml:"id,attr"`
	Anchor navAnchor `xml:"a"`
	Span   string    `xml:"span"`
	Sub    *navList  `xml:"ol"`
}

type navAnchor struct {
	Href  string `xml:"href,attr"`
	Inner string `xml:",innerxml"`
}

func (a *archive) navTOC(item opfItem) ([]TOCNode, error) {
	docPath := a.resolve(item.Href)
	r, err := a.open(docPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	list, err := findTOCNav(newDecoder(r))
	if err != nil {
		return nil, err
	}

	counter := 0
	var convert func(l *navList, parent string) []TOCNode
	convert = func(l *navList, parent string) []TOCNode {
		if l == nil {
			return []TOCNode{}
		}
		nodes := make([]TOCNode, 0, len(l.Items))
		for _, li := range l.Items {
			counter++
			node := TOCNode{
				ID:     li.ID,
				Href:   a.relHref(docPath, li.Anchor.Href),
				Label:  innerText(li.Anchor.Inner),
				Parent: parent,
			}
			if node.ID == "" {
				node.ID = "toc-" + strconv.Itoa(counter)
			}
			if node.Label == "" {
				node.Label = strings.TrimSpace(li.Span)
			}
			node.Subitems = convert(li.Sub, node.ID)
			nodes = append(nodes, node)
		}
		return nodes
	}
	return convert(list, ""), nil
}

// findTOCNav scans for the <nav epub:type="toc"> element, falling back to the
// first <nav> in the document.
func findTOCNav(dec *xml.Decoder) (*navList, error) {
	var fallback *navList
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read nav: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "nav" {
			continue
		}
		var nav struct {
			List navList `xml:"ol"`
		}
		if err := dec.DecodeElement(&nav, &start); err != nil {
			return nil, fmt.Errorf("read nav: %w", err)
		}
		if navType(start) == "toc" {
			return &nav.List, nil
		}
		if fallback == nil {
			list := nav.List
			fallback = &list
		}
	}
	if fallback == nil {
		return nil, ErrNoTOC
	}
	return fallback, nil
}

func navType(start xml.StartElement) string {
	for _, attr := range start.Attr {
		if attr.Name.Local == "type" {
			return attr.Value
		}
	}
	return ""
}

// innerText flattens markup such as <span> inside an anchor into its text.
func innerText(markup string) string {
	dec := newDecoder(strings.NewReader(markup))
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FindChapter walks toc depth first and returns the first node whose href
// equals href. When nothing matches exactly, fragments are ignored on both
// sides. It returns nil when no chapter matches.
func FindChapter(toc []TOCNode, href string) *TOCNode {
	if href == "" {
		return nil
	}
	if node := findNode(toc, func(n TOCNode) bool { return n.Href == href }); node != nil {
		return node
	}
	want := stripFragment(href)
	return findNode(toc, func(n TOCNode) bool { return stripFragment(n.Href) == want })
}

func findNode(nodes []TOCNode, match func(TOCNode) bool) *TOCNode {
	for i := range nodes {
		if match(nodes[i]) {
			found := nodes[i]
			return &found
		}
		if found := findNode(nodes[i].Subitems, match); found != nil {
			return found
		}
	}
	return nil
}
