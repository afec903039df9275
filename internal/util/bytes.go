package util

// CopyBytes returns a copy of src that shares no memory with it, so a
// stored record never aliases a caller's buffer.
func CopyBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
