package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall-ai/pitwall/internal/embedding"
	"github.com/pitwall-ai/pitwall/internal/log"
	"github.com/pitwall-ai/pitwall/internal/vectorstore"
)

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	text, ok := f.pages[url]
	if !ok {
		return "", errors.New("404 not found")
	}
	return text, nil
}

type fakeEmbedder struct {
	dim     int
	failOn  string
	failErr error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, f.failErr
	}
	return make([]float32, f.dim), nil
}

type fakeInserter struct {
	created   []string
	createErr error
	insertErr error
	inserted  []vectorstore.Record
}

func (f *fakeInserter) CreateCollection(_ context.Context, name string, _ int, _ vectorstore.Metric) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, name)
	return nil
}

func (f *fakeInserter) Insert(_ context.Context, _ string, rec vectorstore.Record) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, rec)
	return "id", nil
}

func testOptions(sources ...string) Options {
	return Options{
		Sources:      sources,
		Collection:   "f1gpt",
		Dimension:    4,
		Metric:       vectorstore.MetricDotProduct,
		ChunkSize:    40,
		ChunkOverlap: 0,
	}
}

func TestRun_IngestsAllSources(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/f1": strings.Repeat("alpha beta gamma delta. ", 10),
		"https://b.example/f1": "short page",
	}}
	store := &fakeInserter{}
	p, err := New(fetcher, &fakeEmbedder{dim: 4}, store,
		testOptions("https://a.example/f1", "https://b.example/f1"), log.NewNop())
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"f1gpt"}, store.created)
	assert.Equal(t, 2, report.SourcesProcessed)
	assert.Zero(t, report.SourcesFailed)
	assert.Zero(t, report.ChunksFailed)
	assert.Equal(t, len(store.inserted), report.ChunksInserted)
	assert.Greater(t, report.ChunksInserted, 1)

	for _, rec := range store.inserted {
		assert.Len(t, rec.Vector, 4)
		assert.NotEmpty(t, rec.Text)
	}
}

func TestRun_SkipsFailingSource(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://good.example": "a perfectly fine page",
	}}
	store := &fakeInserter{}
	p, err := New(fetcher, &fakeEmbedder{dim: 4}, store,
		testOptions("https://missing.example", "https://good.example"), log.NewNop())
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.SourcesProcessed)
	assert.Equal(t, 1, report.SourcesFailed)
	assert.Equal(t, 1, report.ChunksInserted)
}

func TestRun_SkipsFailingChunks(t *testing.T) {
	t.Parallel()

	// One sentence fails to embed, the rest of the page still lands.
	page := "Good sentence one. POISON in the middle. Good sentence two. "
	fetcher := &fakeFetcher{pages: map[string]string{"https://a.example": page}}
	store := &fakeInserter{}

	opts := testOptions("https://a.example")
	opts.ChunkSize = 25

	p, err := New(fetcher, &fakeEmbedder{dim: 4, failOn: "POISON", failErr: errors.New("service error")}, store, opts, log.NewNop())
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.SourcesProcessed)
	assert.Equal(t, 1, report.ChunksFailed)
	assert.Greater(t, report.ChunksInserted, 0)
	for _, rec := range store.inserted {
		assert.NotContains(t, rec.Text, "POISON")
	}
}

func TestRun_DimensionMismatchIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"https://a.example": "some text"}}
	embedder := &fakeEmbedder{dim: 4, failOn: "some", failErr: embedding.ErrDimensionMismatch}
	p, err := New(fetcher, embedder, &fakeInserter{}, testOptions("https://a.example"), log.NewNop())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestRun_StoreDimensionMismatchIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"https://a.example": "some text"}}
	store := &fakeInserter{insertErr: vectorstore.ErrDimensionMismatch}
	p, err := New(fetcher, &fakeEmbedder{dim: 4}, store, testOptions("https://a.example"), log.NewNop())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestRun_CreateCollectionFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := &fakeInserter{createErr: vectorstore.ErrUnavailable}
	p, err := New(&fakeFetcher{}, &fakeEmbedder{dim: 4}, store, testOptions("https://a.example"), log.NewNop())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, vectorstore.ErrUnavailable)
}

func TestRun_ContextCancellation(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{"https://a.example": "some text"}}
	p, err := New(fetcher, &fakeEmbedder{dim: 4}, &fakeInserter{}, testOptions("https://a.example"), log.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, &fakeEmbedder{}, &fakeInserter{}, testOptions("https://a.example"), nil)
	assert.Error(t, err)

	_, err = New(&fakeFetcher{}, &fakeEmbedder{}, &fakeInserter{}, testOptions(), nil)
	assert.Error(t, err)
}
