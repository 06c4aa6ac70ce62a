package library

import (
	"hash/fnv"
	"time"
)

// UnknownAuthor is recorded when the package document names no creator.
const UnknownAuthor = "Unknown Author"

// Book is the persisted sidecar record. Field names are the wire format shared
// with reading clients.
type Book struct {
	UniqueKey          string    `json:"uniqueKey" yaml:"uniqueKey"`
	Title              string    `json:"title" yaml:"title"`
	Author             string    `json:"author" yaml:"author"`
	Genre              string    `json:"genre,omitempty" yaml:"genre,omitempty"`
	Cover              string    `json:"cover,omitempty" yaml:"cover,omitempty"`
	FallbackCoverColor string    `json:"fallbackCoverColor" yaml:"fallbackCoverColor"`
	FilePath           string    `json:"filePath" yaml:"filePath"`
	AddedAt            time.Time `json:"addedAt" yaml:"addedAt"`
}

// HasCover reports whether a cover image was found at import time.
func (b Book) HasCover() bool {
	return b.Cover != ""
}

// Listing is the full library as returned to clients.
type Listing struct {
	Books      []Book `json:"books" yaml:"books"`
	Count      int    `json:"count" yaml:"count"`
	TotalPages int    `json:"totalPages" yaml:"totalPages"`
}

var coverPalette = []string{
	"#8c5e58",
	"#5b7065",
	"#3e5c76",
	"#a26769",
	"#6d597a",
	"#b56576",
	"#355070",
	"#7a8450",
	"#9c6644",
	"#4a4e69",
}

// FallbackColor picks a palette colour for books rendered without a cover.
// The same key always maps to the same colour.
func FallbackColor(key string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return coverPalette[h.Sum32()%uint32(len(coverPalette))]
}
