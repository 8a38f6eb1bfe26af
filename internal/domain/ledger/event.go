package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// EventKind is the kind of inventory movement an Event describes
type EventKind string

const (
	// EventKindTransfer moves quantity between two inventory sites
	EventKindTransfer EventKind = "transfer"
	// EventKindAdjustment changes on-hand quantity at one site
	EventKindAdjustment EventKind = "adjustment"
)

// IsValid returns true if the event kind is supported
func (k EventKind) IsValid() bool {
	switch k {
	case EventKindTransfer, EventKindAdjustment:
		return true
	default:
		return false
	}
}

// String returns the string representation of EventKind
func (k EventKind) String() string {
	return string(k)
}

// DefaultTxnKind returns the QuickBooks transaction kind an event of this kind becomes
func (k EventKind) DefaultTxnKind() string {
	switch k {
	case EventKindTransfer:
		return "TransferInventory"
	case EventKindAdjustment:
		return "InventoryAdjustment"
	default:
		return ""
	}
}

// Quantity is a decimal quantity kept in its textual form until the codec
// validates and formats it. It accepts JSON numbers, strings and null.
type Quantity string

// UnmarshalJSON implements json.Unmarshaler
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("ledger: invalid quantity %s: %w", data, err)
		}
		*q = Quantity(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ledger: invalid quantity %s: %w", data, err)
	}
	*q = Quantity(n.String())
	return nil
}

// MarshalJSON implements json.Marshaler
func (q Quantity) MarshalJSON() ([]byte, error) {
	if q == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(q))
}

// IsSet reports whether a value was supplied
func (q Quantity) IsSet() bool {
	return strings.TrimSpace(string(q)) != ""
}

// String returns the raw textual value
func (q Quantity) String() string {
	return string(q)
}

// Line is one item movement inside an Event.
// JSON names follow the ledger's wire format.
type Line struct {
	SKU          string   `json:"sku,omitempty"`
	ItemFullName string   `json:"qbItemFullName,omitempty"`
	Qty          Quantity `json:"qty,omitempty"`
	NewQty       Quantity `json:"newQty,omitempty"`

	FromSite string `json:"fromSiteFullName,omitempty"`
	ToSite   string `json:"toSiteFullName,omitempty"`
	Site     string `json:"siteFullName,omitempty"`
	Account  string `json:"qbAccountFullName,omitempty"`

	// Item-creation metadata, used only when the item is missing from the catalog.
	IncomeAccount       string   `json:"itemIncomeAccountFullName,omitempty"`
	COGSAccount         string   `json:"itemCogsAccountFullName,omitempty"`
	AssetAccount        string   `json:"itemAssetAccountFullName,omitempty"`
	SalesDescription    string   `json:"itemSalesDescription,omitempty"`
	PurchaseDescription string   `json:"itemPurchaseDescription,omitempty"`
	SalesPrice          Quantity `json:"itemSalesPrice,omitempty"`
	PurchaseCost        Quantity `json:"itemPurchaseCost,omitempty"`
	IsActive            *bool    `json:"itemIsActive,omitempty"`
}

// ItemName returns the name used to reference the item in QuickBooks:
// the fully-qualified catalog name when present, else the SKU.
func (l Line) ItemName() string {
	if name := strings.TrimSpace(l.ItemFullName); name != "" {
		return name
	}
	return strings.TrimSpace(l.SKU)
}

// Candidates returns every identifier that may match a catalog entry: the
// full name and SKU, each followed by its leaf when hierarchical.
func (l Line) Candidates() []string {
	out := make([]string, 0, 4)
	add := func(v string) {
		if v == "" || slices.Contains(out, v) {
			return
		}
		out = append(out, v)
	}
	for _, v := range []string{l.ItemFullName, l.SKU} {
		v = strings.TrimSpace(v)
		add(v)
		if i := strings.LastIndex(v, ":"); i >= 0 {
			add(strings.TrimSpace(v[i+1:]))
		}
	}
	return out
}

// Event is an inventory-moving work item supplied by the ledger
type Event struct {
	ID             string    `json:"eventId"`
	Kind           EventKind `json:"eventType"`
	TxnKind        string    `json:"qbTxnType,omitempty"`
	EffectiveDate  string    `json:"effectiveDate"`
	Memo           string    `json:"memo,omitempty"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Lines          []Line    `json:"lines"`
}

// TargetTxnKind returns the transaction kind recorded for outcomes
func (e Event) TargetTxnKind() string {
	if kind := strings.TrimSpace(e.TxnKind); kind != "" {
		return kind
	}
	return e.Kind.DefaultTxnKind()
}

// WithLines returns a copy of the event carrying the given lines.
// The receiver is left untouched.
func (e Event) WithLines(lines []Line) Event {
	cp := e
	cp.Lines = append([]Line(nil), lines...)
	return cp
}

// IdempotencySeed returns the value idempotency tokens are derived from
func (e Event) IdempotencySeed() string {
	if key := strings.TrimSpace(e.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(e.ID)
}
