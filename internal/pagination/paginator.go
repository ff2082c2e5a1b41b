package pagination

import (
	"context"
)

// DefaultPageSize matches the provider's default listing batch.
const DefaultPageSize = 100

// FetchFunc returns one page of items starting after the given cursor, plus
// whether more pages remain. An empty cursor requests the first page.
type FetchFunc[T any] func(ctx context.Context, startingAfter string) (items []T, hasMore bool, err error)

// IDFunc extracts the cursor id of an item.
type IDFunc[T any] func(item T) string

// All drains a paginated listing into a single slice, requesting subsequent
// pages with the last item's id as cursor until the provider reports no more.
func All[T any](ctx context.Context, fetch FetchFunc[T], id IDFunc[T]) ([]T, error) {
	var out []T
	cursor := ""

	for {
		items, hasMore, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)

		if !hasMore || len(items) == 0 {
			return out, nil
		}
		cursor = id(items[len(items)-1])
	}
}
