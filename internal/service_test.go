package internal

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTextModel embeds a query as [1,0] when it mentions "red" and [0,1]
// otherwise.
type fakeTextModel struct {
	tok   *Tokenizer
	calls atomic.Int32
	err   error
}

func (m *fakeTextModel) EmbedTokens(ctx context.Context, tokens TokenSequence) (Embedding, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	if strings.Contains(m.tok.Decode(tokens), "red") {
		return emb(1, 0), nil
	}
	return emb(0, 1), nil
}

type testLibrary struct {
	svc    *LibraryService
	cache  *EmbeddingCache
	source *fakeSource
	images *fakeImageModel
	text   *fakeTextModel
}

func newTestLibrary(t *testing.T, photos ...string) *testLibrary {
	t.Helper()
	tok := newTestTokenizer(t)
	lib := &testLibrary{
		cache:  newTestCache(t),
		source: &fakeSource{ids: ids(photos...)},
		images: &fakeImageModel{dim: 2},
		text:   &fakeTextModel{tok: tok},
	}
	lib.svc = NewLibraryService(LibraryDeps{
		Config:    DefaultConfig(),
		Cache:     lib.cache,
		Source:    lib.source,
		Images:    lib.images,
		Text:      lib.text,
		Tokenizer: tok,
		Stats:     NewStats(),
	})
	return lib
}

func TestLibrarySyncReconciles(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t, "y", "z")
	lib.cache.Put(ctx, "x", emb(1, 0))
	lib.cache.Put(ctx, "y", emb(0, 1))

	progress := &recordingProgress{}
	res, err := lib.svc.Sync(ctx, progress)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Embedded)
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, ids("y", "z"), lib.cache.Keys(ctx).Sorted())
	assert.Equal(t, []int{1}, lib.images.sizes)
	assert.Equal(t, ids("y", "z"), lib.svc.Snapshot().IDs())
	assert.Equal(t, 1, progress.done)
}

func TestLibrarySyncRepairsUnusableRecords(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t, "a", "b")

	require.NoError(t, lib.cache.store.Put(ctx, record("a", 1, 0, 0)))
	require.NoError(t, lib.cache.store.Put(ctx, record("gone", 1, 0, 0)))
	db := lib.cache.store.(*BadgerStore).db
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set(embeddingKey("b"), []byte{0xc1})
	}))

	res, err := lib.svc.Sync(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Embedded)
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, ids("a", "b"), lib.svc.Snapshot().IDs())

	stored, err := lib.cache.store.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids("a", "b"), stored)
	assert.Empty(t, lib.cache.Unusable(ctx))

	res, err = lib.svc.Sync(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Embedded)
	assert.Zero(t, res.Evicted)
}

func TestLibrarySyncNothingToEmbed(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t, "a")
	lib.cache.Put(ctx, "a", emb(1, 0))

	progress := &recordingProgress{}
	res, err := lib.svc.Sync(ctx, progress)
	require.NoError(t, err)

	assert.Zero(t, res.Embedded)
	assert.Zero(t, lib.images.calls)
	assert.Equal(t, 1, lib.svc.Snapshot().Len())
	assert.Equal(t, []float64{1}, progress.updates)
	assert.Equal(t, 1, progress.done)
}

func TestLibraryClearCacheReembedsAll(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t, "a", "b")

	_, err := lib.svc.Sync(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []int{2}, lib.images.sizes)

	res, err := lib.svc.ClearCache(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Embedded)
	assert.Equal(t, []int{2, 2}, lib.images.sizes)
	assert.Equal(t, 2, lib.svc.Snapshot().Len())
}

func TestLibrarySearchText(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	lib.cache.Put(ctx, "A", emb(1, 0))
	lib.cache.Put(ctx, "B", emb(0, 1))
	lib.cache.Put(ctx, "C", emb(0.7, 0.7))
	lib.svc.snapshot.Rebuild(ctx, lib.cache)

	got, err := lib.svc.SearchText(ctx, "a red car", 3)
	require.NoError(t, err)
	gotIDs, _ := photoIDs(got, nil)
	assert.Equal(t, ids("A", "C", "B"), gotIDs)

	summary := lib.svc.Stats().Summary(OpTextInference)
	assert.Equal(t, 1, summary.Count)
}

func TestLibrarySearchTextShortCircuits(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	got, err := lib.svc.SearchText(ctx, "red", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	lib.cache.Put(ctx, "A", emb(1, 0))
	lib.svc.snapshot.Rebuild(ctx, lib.cache)

	got, err = lib.svc.SearchText(ctx, "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, lib.text.calls.Load())
}

func TestLibrarySearchTextModelError(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	lib.cache.Put(ctx, "A", emb(1, 0))
	lib.svc.snapshot.Rebuild(ctx, lib.cache)
	lib.text.err = errors.New("offline")

	_, err := lib.svc.SearchText(ctx, "red", 5)
	assert.Error(t, err)
}

func TestLibrarySearchTextWithoutVocabulary(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	lib.svc.tokenizer = nil
	lib.cache.Put(ctx, "A", emb(1, 0))
	lib.svc.snapshot.Rebuild(ctx, lib.cache)

	_, err := lib.svc.SearchText(ctx, "red", 5)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestLibrarySearchImage(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	lib.cache.Put(ctx, "bright", emb(1, 0))
	lib.cache.Put(ctx, "dark", emb(0, 1))
	lib.svc.snapshot.Rebuild(ctx, lib.cache)

	img := image.NewRGBA(image.Rect(0, 0, 10, 6))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	got, err := lib.svc.SearchImage(ctx, img, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, PhotoID("bright"), got[0].ID)

	_, err = lib.svc.SearchImage(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestLibraryTextQueries(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	lib.svc.cfg.Search.Debounce = 0
	lib.cache.Put(ctx, "A", emb(1, 0))
	lib.svc.snapshot.Rebuild(ctx, lib.cache)

	deliver, results := collect()
	q := lib.svc.TextQueries(ctx, 5, deliver)
	defer q.Close()

	q.Submit("red")
	r := awaitResult(t, results)
	require.NoError(t, r.Err)
	assert.Equal(t, ids("A"), r.IDs)
}

func TestLibraryStatus(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t, "a")

	st := lib.svc.Status(ctx)
	assert.Nil(t, st.LastSync)
	assert.True(t, st.Vocab)

	_, err := lib.svc.Sync(ctx, nil)
	require.NoError(t, err)

	st = lib.svc.Status(ctx)
	assert.Equal(t, 1, st.Cached)
	assert.Equal(t, 1, st.Indexed)
	assert.NotNil(t, st.LastSync)
	assert.Equal(t, 1, st.LastRun.Embedded)
	assert.Equal(t, BackendBadger, st.Backend)
}

func TestOpenLibraryRequiresInit(t *testing.T) {
	scope := Scope{Path: t.TempDir(), DataPath: "/nonexistent/.clipfind"}
	_, err := OpenLibrary(context.Background(), scope, DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestOpenLibraryWithoutVocabulary(t *testing.T) {
	scope := newLibrary(t)
	svc, err := OpenLibrary(context.Background(), scope, DefaultConfig(), nil)
	require.NoError(t, err)
	defer svc.Close()

	assert.Nil(t, svc.Tokenizer())
	assert.Zero(t, svc.Snapshot().Len())
}
