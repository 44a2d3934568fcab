package policy

import "regexp"

var (
	labelledFence   = regexp.MustCompile("(?s)```(?:python|py)\\s*\\n(.*?)```")
	unlabelledFence = regexp.MustCompile("(?s)```\\s*\\n?(.*?)```")
)

// extractCodeFragments pulls code out of a policy response's fenced
// blocks, trying labelled fences (```python / ```py) first and falling
// back to unlabelled fences only when no labelled ones were found, then
// drops exact-duplicate fragments while preserving first-seen order.
func extractCodeFragments(response string) []string {
	matches := labelledFence.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		matches = unlabelledFence.FindAllStringSubmatch(response, -1)
	}

	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		frag := m[1]
		if frag == "" || seen[frag] {
			continue
		}
		seen[frag] = true
		out = append(out, frag)
	}
	return out
}
