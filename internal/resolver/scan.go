package resolver

// span marks one ${...} occurrence inside a template string. start/end
// are byte offsets covering the whole occurrence including delimiters;
// ref is the inner reference text.
type span struct {
	start int
	end   int
	ref   string
}

// scan finds every ${...} occurrence in s. An opening ${ without a
// closing brace, or an empty ${}, is malformed and returned as a
// ResolutionError rather than silently skipped.
func scan(s string) ([]span, error) {
	var spans []span
	i := 0
	for i < len(s) {
		if s[i] != '$' || i+1 >= len(s) || s[i+1] != '{' {
			i++
			continue
		}
		start := i
		j := i + 2
		for j < len(s) && s[j] != '}' {
			j++
		}
		if j >= len(s) {
			return nil, &ResolutionError{Ref: s[start:], Reason: "unterminated reference"}
		}
		ref := s[start+2 : j]
		if ref == "" {
			return nil, &ResolutionError{Ref: "${}", Reason: "empty reference"}
		}
		spans = append(spans, span{start: start, end: j + 1, ref: ref})
		i = j + 1
	}
	return spans, nil
}
