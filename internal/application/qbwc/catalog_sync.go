package qbwc

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
)

// catalogSync is the live item query cycle. It is shared by all sessions:
// there is one catalog, whichever ticket pages through it.
type catalogSync struct {
	mu         sync.Mutex
	mode       qbxml.QueryMode
	fallback   map[string]bool
	open       bool
	iteratorID string
	names      map[string]struct{}
}

func newCatalogSync(mode qbxml.QueryMode, fallbackHResults []string) *catalogSync {
	fb := make(map[string]bool, len(fallbackHResults))
	for _, h := range fallbackHResults {
		if h = foldHResult(h); h != "" {
			fb[h] = true
		}
	}
	return &catalogSync{mode: mode, fallback: fb}
}

func foldHResult(h string) string {
	return cases.Fold().String(strings.TrimSpace(h))
}

// nextRequest starts a cycle if none is open and renders the next page request
func (c *catalogSync) nextRequest(v qbxml.Version, pageSize int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		c.open = true
		c.iteratorID = ""
		c.names = make(map[string]struct{})
	}
	return qbxml.BuildItemQuery(c.mode, v, pageSize, c.iteratorID)
}

// inProgress reports whether a cycle has been started and not finished
func (c *catalogSync) inProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// accept merges one page. When the last page arrives the cycle closes and
// the accumulated names are returned with done set.
func (c *catalogSync) accept(page qbxml.ItemPage) (names []string, done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names == nil {
		c.names = make(map[string]struct{})
	}
	for _, n := range page.Names {
		if n = strings.TrimSpace(n); n != "" {
			c.names[n] = struct{}{}
		}
	}
	if page.Remaining > 0 {
		c.open = true
		c.iteratorID = page.IteratorID
		return nil, false
	}

	names = make([]string, 0, len(c.names))
	for n := range c.names {
		names = append(names, n)
	}
	c.resetLocked()
	return names, true
}

// abort discards the open cycle. It reports true when hresult means the
// current query form is unsupported and the cycle switched to the
// compatibility form; the switch is permanent.
func (c *catalogSync) abort(hresult string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	if c.mode == qbxml.QueryModeCompat || !c.fallback[foldHResult(hresult)] {
		return false
	}
	c.mode = qbxml.QueryModeCompat
	return true
}

func (c *catalogSync) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *catalogSync) resetLocked() {
	c.open = false
	c.iteratorID = ""
	c.names = nil
}

func (c *catalogSync) queryMode() qbxml.QueryMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}
