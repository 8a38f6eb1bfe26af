package qbxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/xmltree"
)

// QueryMode selects the request used to enumerate the item catalog
type QueryMode string

const (
	// QueryModeInventory uses ItemInventoryQueryRq
	QueryModeInventory QueryMode = "inventory"
	// QueryModeCompat uses the older, broader ItemQueryRq
	QueryModeCompat QueryMode = "compat"
)

// ParseQueryMode accepts the mode names plus their historical aliases
func ParseQueryMode(s string) (QueryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inventory", "item_inventory", "iteminventory":
		return QueryModeInventory, nil
	case "compat", "fallback", "item", "itemquery":
		return QueryModeCompat, nil
	default:
		return "", fmt.Errorf("qbxml: unknown catalog query mode %q", s)
	}
}

// String returns the string representation of QueryMode
func (m QueryMode) String() string {
	return string(m)
}

var (
	// ErrMissingIterator is returned when more pages remain but no iterator handle was issued
	ErrMissingIterator = errors.New("qbxml: iteratorRemainingCount > 0 without iteratorID")
	// ErrQueryFailed is returned when the catalog query response reports a failure status
	ErrQueryFailed = errors.New("qbxml: catalog query failed")
)

type itemQueryRq struct {
	XMLName      xml.Name
	Iterator     string `xml:"iterator,attr"`
	IteratorID   string `xml:"iteratorID,attr,omitempty"`
	MaxReturned  int    `xml:"MaxReturned"`
	ActiveStatus string `xml:"ActiveStatus,omitempty"`
}

// BuildItemQuery renders one catalog page request. An empty iteratorID
// starts a new iteration; otherwise the iteration is continued.
func BuildItemQuery(mode QueryMode, v Version, pageSize int, iteratorID string) (string, error) {
	if pageSize < 1 {
		pageSize = 1
	}
	rq := itemQueryRq{MaxReturned: pageSize}
	if mode == QueryModeCompat {
		rq.XMLName = xml.Name{Local: "ItemQueryRq"}
	} else {
		rq.XMLName = xml.Name{Local: "ItemInventoryQueryRq"}
	}

	if iteratorID = strings.TrimSpace(iteratorID); iteratorID != "" {
		rq.Iterator = "Continue"
		rq.IteratorID = iteratorID
	} else {
		rq.Iterator = "Start"
		if mode != QueryModeCompat {
			rq.ActiveStatus = "All"
		}
	}
	return render(v, &rq)
}

// ItemPage is one page of a catalog query
type ItemPage struct {
	Status     Status
	Names      []string
	IteratorID string
	Remaining  int
}

// ParseItemPage extracts inventory item names and the iterator state from a
// catalog query response. Only ItemInventoryRet entries count, so the
// broader compatibility query yields the same set.
func ParseItemPage(response string) (ItemPage, error) {
	if strings.TrimSpace(response) == "" {
		return ItemPage{}, fmt.Errorf("qbxml: empty catalog query response")
	}
	root, err := xmltree.ParseString(response)
	if err != nil {
		return ItemPage{}, fmt.Errorf("qbxml: unable to parse catalog query response: %w", err)
	}

	rs := root.Find(func(n *xmltree.Node) bool {
		return n.Name == "ItemInventoryQueryRs" || n.Name == "ItemQueryRs"
	})
	if rs == nil {
		return ItemPage{}, fmt.Errorf("qbxml: no ItemInventoryQueryRs/ItemQueryRs node in response")
	}

	page := ItemPage{Status: statusOf(rs)}
	page.Status.TxnID = ""
	if !page.Status.Success {
		msg := page.Status.Message
		if msg == "" {
			msg = "Unknown status message."
		}
		return page, fmt.Errorf("%w (statusCode=%s, statusSeverity=%s): %s",
			ErrQueryFailed, page.Status.Code, page.Status.Severity, msg)
	}

	page.IteratorID = strings.TrimSpace(attrOr(rs, "iteratorID", ""))
	if n, err := strconv.Atoi(strings.TrimSpace(attrOr(rs, "iteratorRemainingCount", ""))); err == nil && n > 0 {
		page.Remaining = n
	}
	if page.Remaining > 0 && page.IteratorID == "" {
		return page, ErrMissingIterator
	}

	for _, ret := range rs.FindAll("ItemInventoryRet") {
		name := ret.ChildText("FullName")
		if name == "" {
			name = ret.ChildText("Name")
		}
		if name != "" {
			page.Names = append(page.Names, name)
		}
	}
	return page, nil
}
