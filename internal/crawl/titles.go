package crawl

import (
	"regexp"
	"strconv"
	"sync"

	"shotcrawl/internal/model"
)

var nonWord = regexp.MustCompile(`\W`)

// TitleRegistry hands out screenshot names that are unique within a run.
type TitleRegistry struct {
	mu    sync.Mutex
	taken map[string]bool
}

// NewTitleRegistry returns an empty registry.
func NewTitleRegistry() *TitleRegistry {
	return &TitleRegistry{taken: make(map[string]bool)}
}

// Unique returns "<prefix>__<address with non-word characters as _>",
// suffixed with _1, _2, ... if that name was already issued.
func (r *TitleRegistry) Unique(auth model.AuthContext, address string) string {
	base := auth.Prefix() + "__" + nonWord.ReplaceAllString(address, "_")

	r.mu.Lock()
	defer r.mu.Unlock()
	title := base
	for i := 1; r.taken[title]; i++ {
		title = base + "_" + strconv.Itoa(i)
	}
	r.taken[title] = true
	return title
}
