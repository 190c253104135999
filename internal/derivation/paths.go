package derivation

import "strings"

// Small path-segment helpers for key rewriting. Object keys are '/'
// separated; a leading separator is preserved through a split/join round
// trip so derived keys stay in the caller's addressing style.

func splitKey(key string) (segments []string, rooted bool) {
	rooted = strings.HasPrefix(key, "/")
	trimmed := strings.TrimPrefix(key, "/")
	if trimmed == "" {
		return nil, rooted
	}
	return strings.Split(trimmed, "/"), rooted
}

func joinKey(segments []string, rooted bool) string {
	joined := strings.Join(segments, "/")
	if rooted {
		return "/" + joined
	}
	return joined
}

// replaceSegment substitutes the first segment equal to from. The input
// slice is not modified.
func replaceSegment(segments []string, from, to string) []string {
	out := make([]string, len(segments))
	copy(out, segments)
	for i, seg := range out {
		if seg == from {
			out[i] = to
			break
		}
	}
	return out
}

// insertBeforeLeaf inserts a segment one level above the final element.
func insertBeforeLeaf(segments []string, name string) []string {
	out := make([]string, 0, len(segments)+1)
	out = append(out, segments[:len(segments)-1]...)
	out = append(out, name, segments[len(segments)-1])
	return out
}

// stemOf strips the extension, dot included, from a filename.
func stemOf(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return filename[:i]
	}
	return filename
}
