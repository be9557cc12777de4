package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoImageData is returned when an image record carries no base64 payload.
var ErrNoImageData = errors.New("no base64 image data provided")

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)
	imageNumberRe   = regexp.MustCompile(`image_(\d+)\.png$`)
	dataURIPrefix   = regexp.MustCompile(`^data:image/\w+;base64,`)
)

// ImageStore lays generated images out per entity:
//
//	modules/<module>/images/<entity>/image_<N>.png
//	modules/<module>/images/<entity>/tokens/image_<N>.png
type ImageStore struct {
	fs       FileStorage
	root     string
	moduleID string
	log      zerolog.Logger
}

// NewImageStore returns an ImageStore writing into RootData of fs.
func NewImageStore(fs FileStorage, moduleID string, log zerolog.Logger) *ImageStore {
	return &ImageStore{fs: fs, root: RootData, moduleID: moduleID, log: log}
}

// SanitizeName maps every non alphanumeric character to '_' and lowercases.
func SanitizeName(name string) string {
	return strings.ToLower(unsafeNameChars.ReplaceAllString(name, "_"))
}

// PortraitDir is the directory holding an entity's portraits.
func (s *ImageStore) PortraitDir(entityName string) string {
	return path.Join("modules", s.moduleID, "images", SanitizeName(entityName))
}

// TokenDir is the directory holding an entity's token images.
func (s *ImageStore) TokenDir(entityName string) string {
	return path.Join(s.PortraitDir(entityName), "tokens")
}

// SavePortrait stores a base64 (or data URI) PNG as the next portrait.
func (s *ImageStore) SavePortrait(ctx context.Context, entityName, b64 string) (string, error) {
	return s.save(ctx, s.PortraitDir(entityName), b64)
}

// SaveToken stores a base64 (or data URI) PNG as the next token image.
func (s *ImageStore) SaveToken(ctx context.Context, entityName, b64 string) (string, error) {
	return s.save(ctx, s.TokenDir(entityName), b64)
}

func (s *ImageStore) save(ctx context.Context, dir, b64 string) (string, error) {
	if b64 == "" {
		return "", ErrNoImageData
	}
	data, err := DecodeImage(b64)
	if err != nil {
		return "", err
	}
	s.EnsureDirectory(ctx, dir)
	name := fmt.Sprintf("image_%d.png", s.NextImageNumber(ctx, dir))
	p, err := s.fs.Upload(ctx, s.root, dir, name, data)
	if err != nil {
		return "", fmt.Errorf("upload image file: %w", err)
	}
	s.log.Info().Str("path", p).Int("bytes", len(data)).Msg("image saved")
	return p, nil
}

// EnsureDirectory makes dir exist. It probes first and then creates only the
// missing segments. A segment created concurrently by someone else is not an
// error; other failures are logged and left for the upload to surface.
func (s *ImageStore) EnsureDirectory(ctx context.Context, dir string) {
	if _, err := s.fs.Browse(ctx, s.root, dir); err == nil {
		return
	}
	s.log.Debug().Str("dir", dir).Msg("creating directory")
	cur := ""
	for _, part := range strings.Split(dir, "/") {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		if _, err := s.fs.Browse(ctx, s.root, cur); err == nil {
			continue
		}
		if err := s.fs.CreateDirectory(ctx, s.root, cur); err != nil && !errors.Is(err, fs.ErrExist) {
			s.log.Warn().Err(err).Str("dir", cur).Msg("could not create directory")
		}
	}
}

// NextImageNumber returns one past the highest image_<N>.png in dir, or 1 if
// there is none or dir cannot be browsed.
func (s *ImageStore) NextImageNumber(ctx context.Context, dir string) int {
	files, err := s.fs.Browse(ctx, s.root, dir)
	if err != nil {
		return 1
	}
	return NextImageNumber(files)
}

// NextImageNumber is the pure form of ImageStore.NextImageNumber.
func NextImageNumber(files []string) int {
	highest := 0
	for _, f := range files {
		if n := imageNumber(f); n > highest {
			highest = n
		}
	}
	return highest + 1
}

func imageNumber(file string) int {
	m := imageNumberRe.FindStringSubmatch(file)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// ListImages returns the entity's saved PNG portraits ordered by image number.
// A missing directory yields an empty list.
func (s *ImageStore) ListImages(ctx context.Context, entityName string) []string {
	files, err := s.fs.Browse(ctx, s.root, s.PortraitDir(entityName))
	if err != nil {
		s.log.Debug().Err(err).Str("entity", entityName).Msg("no images found")
		return []string{}
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f, ".png") {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return imageNumber(out[i]) < imageNumber(out[j]) })
	return out
}

// DecodeImage strips an optional data URI prefix and decodes the base64 body.
func DecodeImage(b64 string) ([]byte, error) {
	body := dataURIPrefix.ReplaceAllString(strings.TrimSpace(b64), "")
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		if raw, rerr := base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "=")); rerr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return data, nil
}
