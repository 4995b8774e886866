package ribstats

// DedupPath collapses consecutive repeats of the same AS (path prepending).
// The input is not modified.
func DedupPath(path []uint32) []uint32 {
	if len(path) <= 1 {
		return path
	}
	out := make([]uint32, 1, len(path))
	out[0] = path[0]
	for _, asn := range path[1:] {
		if asn != out[len(out)-1] {
			out = append(out, asn)
		}
	}
	return out
}
