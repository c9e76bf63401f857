package mptable

// Scan searches window byte by byte for an acceptable floating pointer and
// returns its offset. The second return value is false if the window does not
// contain one.
func Scan(window []byte) (int, bool) {
	for offset := 0; offset+FloatingPointerSize <= len(window); offset++ {
		if FloatingPointer(window[offset : offset+FloatingPointerSize]).Acceptable() {
			return offset, true
		}
	}

	return 0, false
}
