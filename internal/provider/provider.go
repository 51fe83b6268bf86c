package provider

import (
	"context"
	"net/http"

	"github.com/italolelis/chapter_downloader/internal/chapter"
)

// Pages is what a provider returns for one chapter. At most one field is expected to be
// populated; callers inspect them in the order Text, URLs, Raw.
type Pages struct {
	Text string
	URLs []string
	Raw  [][]byte
}

// Empty reports whether the payload carries nothing to write.
func (p *Pages) Empty() bool {
	return p == nil || (p.Text == "" && len(p.URLs) == 0 && len(p.Raw) == 0)
}

// Count returns the number of page units in the payload. Text counts as zero.
func (p *Pages) Count() int {
	if p == nil {
		return 0
	}

	if len(p.URLs) > 0 {
		return len(p.URLs)
	}

	return len(p.Raw)
}

type Provider interface {
	FetchPages(ctx context.Context, id chapter.ID) (*Pages, error)
	// TransformRequest builds the GET request for a page URL, letting the provider add
	// whatever headers or auth the source requires.
	TransformRequest(ctx context.Context, url string) (*http.Request, error)
}
