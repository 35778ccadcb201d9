package vector

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/apperr"
)

func newTestLocalStore(t *testing.T, dimensions int) Store {
	t.Helper()
	store, err := NewStore(config.VectorConfig{Driver: "local", Collection: "test_chunks"}, dimensions)
	require.NoError(t, err)
	return store
}

func point(owner uint, subject, docID string, chunkIndex int, text string, vec []float32) Point {
	return Point{
		Vector: vec,
		Payload: Payload{
			OwnerID:      owner,
			Subject:      subject,
			DocumentID:   docID,
			DocumentName: docID + ".pdf",
			ChunkIndex:   chunkIndex,
			ChunkText:    text,
		},
	}
}

func TestLocalStoreScopedSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t, 3)

	// 两个 owner、两个 subject 交叉写入，检索只能命中自己的范围。
	err := store.Upsert(ctx, []Point{
		point(1, "Math", "doc-a", 0, "行列式的定义", []float32{1, 0, 0}),
		point(1, "Math", "doc-a", 1, "特征值与特征向量", []float32{0, 1, 0}),
		point(1, "Physics", "doc-b", 0, "动量守恒", []float32{1, 0, 0}),
		point(2, "Math", "doc-c", 0, "别人的笔记", []float32{1, 0, 0}),
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 1, "Math", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	for _, h := range hits {
		assert.Equal(t, uint(1), h.Payload.OwnerID)
		assert.Equal(t, "Math", h.Payload.Subject)
	}

	// 按相似度降序：与查询向量同向的 chunk 0 排在前面。
	assert.Equal(t, 0, hits[0].Payload.ChunkIndex)
	assert.Equal(t, "行列式的定义", hits[0].Payload.ChunkText)
	assert.Equal(t, "doc-a", hits[0].Payload.DocumentID)
	assert.Equal(t, "doc-a.pdf", hits[0].Payload.DocumentName)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestLocalStoreZeroHits(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t, 3)

	t.Run("empty collection", func(t *testing.T) {
		hits, err := store.Search(ctx, []float32{1, 0, 0}, 1, "Math", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("scope matches nothing", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, []Point{
			point(1, "Math", "doc-a", 0, "text", []float32{1, 0, 0}),
		}))
		hits, err := store.Search(ctx, []float32{1, 0, 0}, 3, "Math", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = store.Search(ctx, []float32{1, 0, 0}, 1, "History", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestLocalStoreScopeValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t, 3)
	vec := []float32{1, 0, 0}

	_, err := store.Search(ctx, vec, 0, "Math", 5)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	_, err = store.Search(ctx, vec, 1, "", 5)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	_, err = store.Search(ctx, vec, 1, "Math", 0)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestLocalStoreDimensionChecks(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t, 3)

	err := store.Upsert(ctx, []Point{point(1, "Math", "doc-a", 0, "text", []float32{1, 0})})
	require.Error(t, err)
	assert.True(t, apperr.IsInfrastructure(err))

	_, err = store.Search(ctx, []float32{1, 0}, 1, "Math", 5)
	require.Error(t, err)
	assert.True(t, apperr.IsInfrastructure(err))
}

func TestLocalStoreRejectsInvalidPayload(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t, 3)

	p := point(1, "Math", "doc-a", 0, "text", []float32{1, 0, 0})
	p.Payload.DocumentID = ""
	err := store.Upsert(ctx, []Point{p})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	// 校验失败的批次不应写入任何内容。
	hits, err := store.Search(ctx, []float32{1, 0, 0}, 1, "Math", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLocalStoreTopKClampedToStoredCount(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t, 3)

	require.NoError(t, store.Upsert(ctx, []Point{
		point(1, "Math", "doc-a", 0, "chunk 0", []float32{1, 0, 0}),
		point(1, "Math", "doc-a", 1, "chunk 1", []float32{0, 1, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 1, "Math", 100)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestLocalStoreEnsureCollectionIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t, 3)

	require.NoError(t, store.EnsureCollection(ctx))
	require.NoError(t, store.EnsureCollection(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.EnsureCollection(ctx))
		}()
	}
	wg.Wait()

	require.NoError(t, store.Upsert(ctx, []Point{
		point(1, "Math", "doc-a", 0, "text", []float32{1, 0, 0}),
	}))
}

func TestLocalStoreUpsertEmptyBatch(t *testing.T) {
	store := newTestLocalStore(t, 3)
	assert.NoError(t, store.Upsert(context.Background(), nil))
}
