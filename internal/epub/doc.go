// Package epub inspects EPUB archives: package metadata from the OPF
// document, the table of contents from the NCX or EPUB 3 navigation
// document, and cover images for the library view.
//
// Nothing here renders content. Readers receive the raw archive from the
// file server and use the TOC only to map a reported location back to a
// chapter.
package epub
