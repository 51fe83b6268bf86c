package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	pages *Pages
	err   error
	calls int
}

func (s *stubProvider) FetchPages(context.Context, chapter.ID) (*Pages, error) {
	s.calls++

	return s.pages, s.err
}

func (s *stubProvider) TransformRequest(ctx context.Context, url string) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
}

func TestPagesCountAndEmpty(t *testing.T) {
	var nilPages *Pages
	assert.True(t, nilPages.Empty())
	assert.Zero(t, nilPages.Count())

	assert.True(t, (&Pages{}).Empty())
	assert.False(t, (&Pages{Text: "hello"}).Empty())
	assert.Zero(t, (&Pages{Text: "hello"}).Count())
	assert.Equal(t, 2, (&Pages{URLs: []string{"a", "b"}}).Count())
	assert.Equal(t, 3, (&Pages{Raw: [][]byte{{1}, {2}, {3}}}).Count())
}

func TestInstrumentedProvider(t *testing.T) {
	ctx := context.Background()
	tel, err := telemetry.New(ctx, telemetry.Config{Enabled: false})
	require.NoError(t, err)

	id := chapter.NewID("src", "content", "ch")

	stub := &stubProvider{pages: &Pages{URLs: []string{"http://x/1.png"}}}
	p := NewInstrumentedProvider(stub, tel, "stub")

	pages, err := p.FetchPages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://x/1.png"}, pages.URLs)
	assert.Equal(t, 1, stub.calls)

	boom := errors.New("boom")
	p = NewInstrumentedProvider(&stubProvider{err: boom}, tel, "stub")

	pages, err = p.FetchPages(ctx, id)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, pages)

	req, err := p.TransformRequest(ctx, "http://x/1.png")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
}
