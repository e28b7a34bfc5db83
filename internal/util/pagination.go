package util

// Calculate turns a 1-based page and a page size into an offset and limit.
// Sizes outside 1..100 fall back to 10.
func Calculate(page, size int) (from, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	from = (page - 1) * size
	return from, size
}

// Page returns the items of one page. Pages past the end are empty.
func Page[T any](items []T, page, size int) []T {
	from, limit := Calculate(page, size)
	if from >= len(items) {
		return items[:0]
	}
	return items[from:min(from+limit, len(items))]
}
