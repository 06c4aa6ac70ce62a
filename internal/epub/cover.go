package epub

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"aveline/internal/fileutil"
	"aveline/internal/logging"
)

// coverNames are searched in order; the first name found anywhere in the
// extracted tree wins.
var coverNames = []string{"cover.jpg", "cover.jpeg", "cover.png", "cover.html"}

// Cover is the result of a cover lookup. The zero value is an absent cover.
type Cover struct {
	uri string
}

// DataURI returns the cover as a data URI and whether one was found.
func (c Cover) DataURI() (string, bool) {
	return c.uri, c.uri != ""
}

// Bytes decodes the data URI back into the media type and raw image bytes.
func (c Cover) Bytes() (string, []byte, error) {
	if c.uri == "" {
		return "", nil, ErrEntryNotFound
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(c.uri, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed cover data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode cover: %w", err)
	}
	return strings.TrimSuffix(header, ";base64"), data, nil
}

// CoverExtractor unpacks archives into scratch directories to find covers.
type CoverExtractor struct {
	tempDir  string
	maxWidth int
	quality  int
	logger   *slog.Logger
}

// CoverOption customizes a CoverExtractor.
type CoverOption func(*CoverExtractor)

// WithMaxWidth down-scales decodable covers wider than width and re-encodes
// them as JPEG at the given quality. A width of 0 keeps the original bytes.
func WithMaxWidth(width, quality int) CoverOption {
	return func(e *CoverExtractor) {
		e.maxWidth = width
		e.quality = quality
	}
}

// WithLogger attaches a logger for debug output on failed lookups.
func WithLogger(logger *slog.Logger) CoverOption {
	return func(e *CoverExtractor) {
		e.logger = logger
	}
}

// NewCoverExtractor builds an extractor that stages archives under tempDir
// (os.TempDir when empty).
func NewCoverExtractor(tempDir string, opts ...CoverOption) *CoverExtractor {
	if strings.TrimSpace(tempDir) == "" {
		tempDir = os.TempDir()
	}
	e := &CoverExtractor{tempDir: tempDir, quality: 80, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.logger = logging.NewComponentLogger(e.logger, "cover")
	return e
}

// Extract looks for a conventionally named cover inside the archive at
// archivePath. Failures yield an absent cover and are logged at debug level.
func (e *CoverExtractor) Extract(ctx context.Context, archivePath string) Cover {
	uri, err := e.extract(ctx, archivePath)
	if err != nil {
		e.logger.Debug("cover lookup failed",
			logging.String(logging.FieldBookPath, archivePath),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cover_missing"),
		)
		return Cover{}
	}
	return Cover{uri: uri}
}

func (e *CoverExtractor) extract(ctx context.Context, archivePath string) (string, error) {
	workDir := filepath.Join(e.tempDir, "temp_"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	staged := filepath.Join(workDir, "temp.epub")
	if err := fileutil.CopyFile(archivePath, staged); err != nil {
		return "", fmt.Errorf("stage archive: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := fileutil.ExtractZip(staged, workDir); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, name := range coverNames {
		found, err := searchFile(workDir, name)
		if err != nil {
			return "", err
		}
		if found == "" {
			continue
		}
		data, err := os.ReadFile(found)
		if err != nil {
			return "", fmt.Errorf("read cover: %w", err)
		}
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		if e.maxWidth > 0 && ext != "html" {
			if scaled, ok := e.scale(data); ok {
				return dataURI("jpeg", scaled), nil
			}
		}
		return dataURI(ext, data), nil
	}
	return "", fmt.Errorf("no cover image in archive")
}

// searchFile returns the first file called name under dir, visiting entries
// in lexical order.
func searchFile(dir, name string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			found, err := searchFile(full, name)
			if err != nil {
				return "", err
			}
			if found != "" {
				return found, nil
			}
			continue
		}
		if entry.Name() == name {
			return full, nil
		}
	}
	return "", nil
}

func (e *CoverExtractor) scale(data []byte) ([]byte, bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	if img.Bounds().Dx() > e.maxWidth {
		img = resize.Resize(uint(e.maxWidth), 0, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func dataURI(ext string, data []byte) string {
	return "data:image/" + ext + ";base64," + base64.StdEncoding.EncodeToString(data)
}
