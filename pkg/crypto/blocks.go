package crypto

// SplitBlocks cuts data into blocks of size bytes, zero-padding the last one.
func SplitBlocks(data []byte, size int) [][]byte {
	count := (len(data) + size - 1) / size
	blocks := make([][]byte, count)
	for i := range blocks {
		block := make([]byte, size)
		copy(block, data[i*size:])
		blocks[i] = block
	}
	return blocks
}

// StripTrailingZeros drops the zero bytes at the end of data.
func StripTrailingZeros(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	return data[:end]
}
