// Package library manages the on-disk book library.
//
// Each imported book is stored as <library>/<name>.epub next to a JSON
// sidecar <library>/<name>.epub.json holding its Book record. The sidecars are
// the source of truth: listing reads every sidecar on each call and there is
// no index or cache to keep in sync.
//
// The Importer copies a source file into the library, derives metadata from
// the package document, extracts a cover and writes the sidecar. Imports are
// not serialized; two imports of the same file name race and the last writer
// wins.
package library
