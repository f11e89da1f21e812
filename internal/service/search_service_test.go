package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tzappu-go/internal/model"
)

type fakeSearcher struct {
	query, phrase string
	size          int
	hits          []model.ChatSearchHit
	err           error
}

func (f *fakeSearcher) SearchChats(_ context.Context, query, phrase string, size int) ([]model.ChatSearchHit, error) {
	f.query, f.phrase, f.size = query, phrase, size
	return f.hits, f.err
}

func TestSearchService_Search(t *testing.T) {
	searcher := &fakeSearcher{hits: []model.ChatSearchHit{{ChatID: "c1", Title: "Beach"}}}
	svc := NewSearchService(searcher)

	hits, err := svc.Search(context.Background(), "  Beach hotels?  ", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "beach hotels", searcher.query)
	assert.Equal(t, "beach hotels", searcher.phrase)
	assert.Equal(t, defaultSearchSize, searcher.size)

	_, err = svc.Search(context.Background(), "x", 500)
	require.NoError(t, err)
	assert.Equal(t, maxSearchSize, searcher.size)
}

func TestSearchService_EmptyQuery(t *testing.T) {
	searcher := &fakeSearcher{}
	hits, err := NewSearchService(searcher).Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, searcher.query, "blank queries never reach the index")
}

func TestSearchService_Errors(t *testing.T) {
	_, err := NewSearchService(nil).Search(context.Background(), "x", 5)
	assert.ErrorIs(t, err, ErrSearchDisabled)

	boom := errors.New("es down")
	_, err = NewSearchService(&fakeSearcher{err: boom}).Search(context.Background(), "x", 5)
	assert.ErrorIs(t, err, boom)
}

func TestNormalizeQuery(t *testing.T) {
	normalized, phrase := normalizeQuery("请问 海边酒店？")
	assert.Equal(t, "海边酒店", normalized)
	assert.Equal(t, "海边酒店", phrase)

	normalized, phrase = normalizeQuery("!!!")
	assert.Equal(t, "!!!", normalized)
	assert.Empty(t, phrase)
}
