package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/italolelis/chapter_downloader/internal/chapter"
)

const (
	chaptersDir      = "Chapters"
	scratchDir       = ".scratch"
	archivesDir      = "Archives"
	legacyScratchDir = "tmp"
)

// Resolver maps chapter ids onto a deterministic directory layout below a data root:
//
//	<root>/Chapters/<hash(source)>/<hash(content)>/<hash(chapter)>   permanent pages
//	<root>/.scratch/<hash(source)>/<hash(content)>/<hash(chapter)>   in-progress pages
//	<root>/Archives/<name>.cbz                                       archive mode output
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// PathFor returns the chapter directory, inside the scratch root when temp is set.
func (r *Resolver) PathFor(id chapter.ID, temp bool) string {
	base := r.PermanentRoot()
	if temp {
		base = r.ScratchRoot()
	}

	return filepath.Join(base, Hash(id.SourceID), Hash(id.ContentID), Hash(id.ChapterID))
}

// ContentDir is the parent directory shared by all chapters of the same content item.
func (r *Resolver) ContentDir(id chapter.ID) string {
	return filepath.Join(r.PermanentRoot(), Hash(id.SourceID), Hash(id.ContentID))
}

func (r *Resolver) PermanentRoot() string { return filepath.Join(r.root, chaptersDir) }

func (r *Resolver) ScratchRoot() string { return filepath.Join(r.root, scratchDir) }

func (r *Resolver) ArchivesDir() string { return filepath.Join(r.root, archivesDir) }

// LegacyScratchRoot is the flat scratch directory used by older layouts.
func (r *Resolver) LegacyScratchRoot() string { return filepath.Join(r.root, legacyScratchDir) }

// ArchivePath returns the location of an archive by its stored locator.
func (r *Resolver) ArchivePath(name string) string {
	return filepath.Join(r.ArchivesDir(), filepath.Base(name))
}

// Hash is the hex SHA-256 of a single path segment.
func Hash(segment string) string {
	sum := sha256.Sum256([]byte(segment))

	return hex.EncodeToString(sum[:])
}
