// Package comicinfo renders the ComicInfo.xml metadata document stored inside chapter archives.
package comicinfo

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/italolelis/chapter_downloader/internal/storage"
)

// FileName is the entry name readers look for inside a .cbz archive.
const FileName = "ComicInfo.xml"

const appName = "chapter_downloader"

// Manga flag values defined by the ComicInfo schema.
const (
	MangaUnknown        = "Unknown"
	MangaNo             = "No"
	MangaYesRightToLeft = "YesAndRightToLeft"

	contentKindManga = "manga"
)

// ComicInfo is the subset of the ComicInfo v2 schema we populate.
type ComicInfo struct {
	XMLName     xml.Name `xml:"ComicInfo"`
	XMLNSXsi    string   `xml:"xmlns:xsi,attr"`
	XMLNSXsd    string   `xml:"xmlns:xsd,attr"`
	Title       string   `xml:"Title,omitempty"`
	Series      string   `xml:"Series,omitempty"`
	Number      string   `xml:"Number,omitempty"`
	Volume      string   `xml:"Volume,omitempty"`
	Summary     string   `xml:"Summary,omitempty"`
	Notes       string   `xml:"Notes,omitempty"`
	Year        int      `xml:"Year,omitempty"`
	Month       int      `xml:"Month,omitempty"`
	Day         int      `xml:"Day,omitempty"`
	Writer      string   `xml:"Writer,omitempty"`
	Web         string   `xml:"Web,omitempty"`
	LanguageISO string   `xml:"LanguageISO,omitempty"`
	Manga       string   `xml:"Manga"`
}

// FormatNumber renders chapter and volume numbers without trailing zeros ("5", "12.5").
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// New builds the document for a record. appVersion and generatedAt stamp the Notes element.
func New(rec *storage.DownloadRecord, appVersion string, generatedAt time.Time) *ComicInfo {
	ci := &ComicInfo{
		XMLNSXsi:    "http://www.w3.org/2001/XMLSchema-instance",
		XMLNSXsd:    "http://www.w3.org/2001/XMLSchema",
		Title:       strings.TrimSpace(rec.ChapterTitle),
		Series:      strings.TrimSpace(rec.ContentTitle),
		Summary:     strings.TrimSpace(rec.Summary),
		Writer:      strings.TrimSpace(rec.Creator),
		Web:         strings.TrimSpace(rec.ExternalURL),
		LanguageISO: strings.TrimSpace(rec.Language),
		Manga:       mangaFlag(rec.ContentKind),
		Notes:       fmt.Sprintf("Downloaded with %s %s on %s", appName, appVersion, generatedAt.UTC().Format(time.DateOnly)),
	}

	if rec.ChapterNumber != nil {
		ci.Number = FormatNumber(*rec.ChapterNumber)
	}

	if rec.VolumeNumber != nil {
		ci.Volume = FormatNumber(*rec.VolumeNumber)
	}

	if rec.PublishedAt != nil {
		p := rec.PublishedAt.UTC()
		ci.Year, ci.Month, ci.Day = p.Year(), int(p.Month()), p.Day()
	}

	return ci
}

// Marshal returns the indented document with the XML declaration.
func (ci *ComicInfo) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(ci, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal comic info: %w", err)
	}

	return append([]byte(xml.Header), body...), nil
}

// Write stores the document as dir/ComicInfo.xml.
func (ci *ComicInfo) Write(dir string) error {
	body, err := ci.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), body, 0o644); err != nil {
		return fmt.Errorf("failed to write comic info: %w", err)
	}

	return nil
}

func mangaFlag(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "":
		return MangaUnknown
	case contentKindManga:
		return MangaYesRightToLeft
	default:
		return MangaNo
	}
}
