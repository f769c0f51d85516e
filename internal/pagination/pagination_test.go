package pagination

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scholarpost/paperbot/internal/domain"
)

func papers(n int) []*domain.Paper {
	out := make([]*domain.Paper, n)
	for i := range out {
		out[i] = &domain.Paper{Title: fmt.Sprintf("paper %d", i)}
	}
	return out
}

func TestSlicePage_FirstPage(t *testing.T) {
	t.Run("full page with more available", func(t *testing.T) {
		results := papers(10)

		visible, hasMore := SlicePage(results, 0, 5, false)

		assert.Len(t, visible, 5)
		assert.Equal(t, "paper 0", visible[0].Title)
		assert.Equal(t, "paper 4", visible[4].Title)
		assert.True(t, hasMore)
	})

	t.Run("exactly one page means no more", func(t *testing.T) {
		visible, hasMore := SlicePage(papers(5), 0, 5, false)

		assert.Len(t, visible, 5)
		assert.False(t, hasMore)
	})

	t.Run("short result set", func(t *testing.T) {
		visible, hasMore := SlicePage(papers(3), 0, 5, false)

		assert.Len(t, visible, 3)
		assert.False(t, hasMore)
	})

	t.Run("empty result set", func(t *testing.T) {
		visible, hasMore := SlicePage(papers(0), 0, 5, false)

		assert.Empty(t, visible)
		assert.False(t, hasMore)
	})
}

func TestSlicePage_Continuation(t *testing.T) {
	t.Run("second page exhausts results", func(t *testing.T) {
		visible, hasMore := SlicePage(papers(10), 1, 5, true)

		assert.Len(t, visible, 5)
		assert.Equal(t, "paper 5", visible[0].Title)
		assert.Equal(t, "paper 9", visible[4].Title)
		assert.False(t, hasMore)
	})

	t.Run("offset past end yields empty slice, not error", func(t *testing.T) {
		visible, hasMore := SlicePage(papers(5), 2, 5, true)

		assert.Empty(t, visible)
		assert.False(t, hasMore)
	})

	t.Run("partial continuation page", func(t *testing.T) {
		visible, hasMore := SlicePage(papers(8), 1, 5, true)

		assert.Len(t, visible, 3)
		assert.Equal(t, "paper 5", visible[0].Title)
		assert.False(t, hasMore)
	})

	t.Run("middle page keeps hasMore true", func(t *testing.T) {
		visible, hasMore := SlicePage(papers(15), 1, 5, true)

		assert.Len(t, visible, 5)
		assert.True(t, hasMore)
	})

	t.Run("hasMore from actual length when provider exhausted", func(t *testing.T) {
		// A FetchCeiling(1, 5) request asked for 15 but only 12 came back.
		visible, hasMore := SlicePage(papers(12), 1, 5, true)

		assert.Len(t, visible, 5)
		assert.True(t, hasMore) // 2 remain on page 2

		visible, hasMore = SlicePage(papers(12), 2, 5, true)
		assert.Len(t, visible, 2)
		assert.False(t, hasMore)
	})
}

func TestFetchCeiling(t *testing.T) {
	assert.Equal(t, 10, FetchCeiling(0, 5))
	assert.Equal(t, 15, FetchCeiling(1, 5))
	assert.Equal(t, 40, FetchCeiling(2, 10))
}

func TestSlicePage_InvalidPageSize(t *testing.T) {
	visible, hasMore := SlicePage(papers(10), 0, 0, false)

	assert.Empty(t, visible)
	assert.False(t, hasMore)
}
