package chapter

import (
	"strings"
)

// Separator joins the three parts of a composite chapter identifier.
const Separator = "||"

const separatorChar = "|"

// ID identifies a chapter of a content item served by a source.
type ID struct {
	SourceID  string
	ContentID string
	ChapterID string
}

// NewID builds an ID from its parts.
func NewID(sourceID, contentID, chapterID string) ID {
	return ID{SourceID: sourceID, ContentID: contentID, ChapterID: chapterID}
}

// ParseID splits a composite key produced by ID.String.
// The chapter part may itself contain the separator.
func ParseID(key string) (ID, error) {
	parts := strings.SplitN(key, Separator, 3)
	if len(parts) != 3 {
		return ID{}, &InvalidIDError{Key: key, Reason: "expected source||content||chapter"}
	}

	id := ID{SourceID: parts[0], ContentID: parts[1], ChapterID: parts[2]}
	if err := id.Validate(); err != nil {
		return ID{}, err
	}

	return id, nil
}

// ParseIDs parses every key, failing on the first malformed one.
func ParseIDs(keys []string) ([]ID, error) {
	ids := make([]ID, 0, len(keys))

	for _, key := range keys {
		id, err := ParseID(key)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// Validate reports an InvalidIDError when any part is empty, or when the source or
// content part contains a separator character. Only the chapter part may, which keeps
// String injective and ParseID its inverse.
func (id ID) Validate() error {
	if id.SourceID == "" || id.ContentID == "" || id.ChapterID == "" {
		return &InvalidIDError{Key: id.String(), Reason: "all parts must be non-empty"}
	}

	if strings.Contains(id.SourceID, separatorChar) || strings.Contains(id.ContentID, separatorChar) {
		return &InvalidIDError{Key: id.String(), Reason: "source and content ids must not contain " + separatorChar}
	}

	return nil
}

// String returns the composite key used as the persistence primary key.
func (id ID) String() string {
	return id.SourceID + Separator + id.ContentID + Separator + id.ChapterID
}

// SameContent reports whether both ids belong to the same content item.
func (id ID) SameContent(other ID) bool {
	return id.SourceID == other.SourceID && id.ContentID == other.ContentID
}
