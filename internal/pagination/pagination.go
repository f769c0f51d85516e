// Package pagination computes which slice of a fetched result set to show
// and whether further pages exist.
package pagination

import "github.com/scholarpost/paperbot/internal/domain"

// FetchCeiling returns how many results to request upstream so that the
// page can be served and "has more" decided without a second round-trip.
// One extra page beyond the requested one is fetched deliberately.
func FetchCeiling(page, pageSize int) int {
	return pageSize * (page + 2)
}

// SlicePage returns the papers visible on the given zero-based page and
// whether at least one further page exists.
//
// For a fresh query (continuation=false) the slice starts at the beginning.
// For a continuation whose offset lies at or past the end of results, the
// slice is empty and hasMore is false, which callers present as "no more
// results" rather than an error. hasMore is always computed from the actual
// returned length, never the requested count, so an exhausted provider
// cannot fabricate a further page.
func SlicePage(results []*domain.Paper, page, pageSize int, continuation bool) (visible []*domain.Paper, hasMore bool) {
	if pageSize <= 0 {
		return nil, false
	}

	if !continuation || page <= 0 {
		if len(results) <= pageSize {
			return results, false
		}
		return results[:pageSize], true
	}

	offset := pageSize * page
	if offset >= len(results) {
		return nil, false
	}

	end := offset + pageSize
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end], pageSize*(page+1) < len(results)
}
