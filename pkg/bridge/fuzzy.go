package bridge

import (
	"sort"
	"strings"
)

const maxSuggestions = 3

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// suggestShortNames ranks candidate short names by edit distance to the
// query and returns the closest few, case-insensitively.
func suggestShortNames(query string, candidates []string) []string {
	type ranked struct {
		name string
		dist int
	}

	q := strings.ToLower(query)
	seen := map[string]bool{}
	scored := []ranked{}
	for _, name := range candidates {
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		scored = append(scored, ranked{name: name, dist: levenshtein(q, strings.ToLower(name))})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].dist < scored[j].dist
	})

	out := []string{}
	for _, r := range scored {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, r.name)
	}
	return out
}
