package service

// Chunk splits items into contiguous slices of at most size elements:
// [1 2 3 4 5 6 7], 3 -> [[1 2 3] [4 5 6] [7]]
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
