package guard

import (
	"strings"
	"sync"
)

// Navigator is the navigation stack the guard redirects.
type Navigator interface {
	Location() string
	Replace(location string)
}

// Routes describes the public and protected areas.
type Routes struct {
	Login     string   // public sign-in location
	Home      string   // default protected location
	Protected string   // prefix of the protected area
	Public    []string // other public locations signed-in users may stay on
}

// DefaultRoutes mirrors the app's layout: sign-in at the root, everything
// else under the tab group.
var DefaultRoutes = Routes{
	Login:     "/",
	Home:      "/(tabs)",
	Protected: "/(tabs)",
}

func (r Routes) protected(loc string) bool {
	return loc == r.Protected || strings.HasPrefix(loc, strings.TrimSuffix(r.Protected, "/")+"/")
}

func (r Routes) whitelisted(loc string) bool {
	for _, p := range r.Public {
		if p == loc {
			return true
		}
	}
	return false
}

// History is an in-memory Navigator.
type History struct {
	mu    sync.Mutex
	stack []string
}

func NewHistory(start string) *History {
	return &History{stack: []string{start}}
}

func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stack[len(h.stack)-1]
}

// Replace swaps the current location without growing the stack.
func (h *History) Replace(location string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack[len(h.stack)-1] = location
}

func (h *History) Push(location string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack = append(h.stack, location)
}

// Back pops one entry. It reports false at the root.
func (h *History) Back() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.stack) == 1 {
		return false
	}
	h.stack = h.stack[:len(h.stack)-1]
	return true
}
