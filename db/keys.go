package db

// PrefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if there is none (prefix is empty or all 0xff).
func PrefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
