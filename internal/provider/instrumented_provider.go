package provider

import (
	"context"
	"net/http"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/telemetry"
)

// InstrumentedProvider wraps Provider with telemetry.
type InstrumentedProvider struct {
	provider  Provider
	telemetry *telemetry.Telemetry
	name      string
}

var _ Provider = (*InstrumentedProvider)(nil)

// NewInstrumentedProvider creates a new instrumented provider; name labels its metrics.
func NewInstrumentedProvider(p Provider, tel *telemetry.Telemetry, name string) *InstrumentedProvider {
	return &InstrumentedProvider{
		provider:  p,
		telemetry: tel,
		name:      name,
	}
}

func (p *InstrumentedProvider) FetchPages(ctx context.Context, id chapter.ID) (*Pages, error) {
	var result *Pages

	err := p.telemetry.InstrumentProviderOperation(ctx, p.name, "fetch_pages", func(ctx context.Context) error {
		var err error
		result, err = p.provider.FetchPages(ctx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (p *InstrumentedProvider) TransformRequest(ctx context.Context, url string) (*http.Request, error) {
	return p.provider.TransformRequest(ctx, url)
}
