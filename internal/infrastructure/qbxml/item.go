package qbxml

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/shared"
)

// maxItemNameLength is QuickBooks' limit for one level of an item name
const maxItemNameLength = 31

// ItemSpec describes one inventory item to create before an event can be sent
type ItemSpec struct {
	RequestID           string
	FullName            string
	SKU                 string
	IncomeAccount       string
	COGSAccount         string
	AssetAccount        string
	SalesDescription    string
	PurchaseDescription string
	SalesPrice          string
	PurchaseCost        string
	IsActive            *bool
}

// NewItemRequestID derives the request id for creating name on behalf of
// eventID. The same inputs always yield the same id.
func NewItemRequestID(eventID, name string, ordinal int) string {
	seed := strings.Join([]string{
		eventID,
		"item_add",
		cases.Fold().String(strings.TrimSpace(name)),
		strconv.Itoa(ordinal),
	}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

// Validate checks the spec can be expressed as an ItemInventoryAdd
func (s ItemSpec) Validate() error {
	name := strings.TrimSpace(s.FullName)
	if name == "" {
		return shared.NewDomainError(shared.CodeInvalidEvent, "Missing qbItemFullName/sku for auto-create candidate.")
	}

	var missing []string
	if strings.TrimSpace(s.IncomeAccount) == "" {
		missing = append(missing, "income account")
	}
	if strings.TrimSpace(s.COGSAccount) == "" {
		missing = append(missing, "COGS account")
	}
	if strings.TrimSpace(s.AssetAccount) == "" {
		missing = append(missing, "asset account")
	}
	if len(missing) > 0 {
		label := strings.TrimSpace(s.SKU)
		if label == "" {
			label = name
		}
		return shared.NewDomainError(shared.CodeMissingAccountMapping,
			fmt.Sprintf("Cannot auto-create item %s: missing %s mapping.", label, strings.Join(missing, ", ")))
	}

	for _, part := range strings.Split(name, ":") {
		if utf8.RuneCountInString(part) > maxItemNameLength {
			return shared.NewDomainError(shared.CodeInvalidEvent,
				fmt.Sprintf("Cannot auto-create item %s: name segment %q exceeds %d characters.", name, part, maxItemNameLength))
		}
	}
	return nil
}

type itemInventoryAddRq struct {
	XMLName   xml.Name         `xml:"ItemInventoryAddRq"`
	RequestID string           `xml:"requestID,attr"`
	Add       itemInventoryAdd `xml:"ItemInventoryAdd"`
}

type itemInventoryAdd struct {
	Name          string       `xml:"Name"`
	IsActive      *bool        `xml:"IsActive,omitempty"`
	Parent        *fullNameRef `xml:"ParentRef,omitempty"`
	SalesDesc     string       `xml:"SalesDesc,omitempty"`
	SalesPrice    string       `xml:"SalesPrice,omitempty"`
	IncomeAccount fullNameRef  `xml:"IncomeAccountRef"`
	PurchaseDesc  string       `xml:"PurchaseDesc,omitempty"`
	PurchaseCost  string       `xml:"PurchaseCost,omitempty"`
	COGSAccount   fullNameRef  `xml:"COGSAccountRef"`
	AssetAccount  fullNameRef  `xml:"AssetAccountRef"`
}

// BuildItemCreate renders an ItemInventoryAdd request for spec
func BuildItemCreate(spec ItemSpec, v Version) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	name := strings.TrimSpace(spec.FullName)
	add := itemInventoryAdd{
		Name:          name,
		IsActive:      spec.IsActive,
		SalesDesc:     strings.TrimSpace(spec.SalesDescription),
		IncomeAccount: ref(strings.TrimSpace(spec.IncomeAccount)),
		PurchaseDesc:  strings.TrimSpace(spec.PurchaseDescription),
		COGSAccount:   ref(strings.TrimSpace(spec.COGSAccount)),
		AssetAccount:  ref(strings.TrimSpace(spec.AssetAccount)),
	}
	if i := strings.LastIndex(name, ":"); i >= 0 {
		add.Name = name[i+1:]
		add.Parent = &fullNameRef{FullName: name[:i]}
	}

	if strings.TrimSpace(spec.SalesPrice) != "" {
		price, err := formatQuantity("SalesPrice", spec.SalesPrice)
		if err != nil {
			return "", err
		}
		add.SalesPrice = price
	}
	if strings.TrimSpace(spec.PurchaseCost) != "" {
		cost, err := formatQuantity("PurchaseCost", spec.PurchaseCost)
		if err != nil {
			return "", err
		}
		add.PurchaseCost = cost
	}

	return render(v, &itemInventoryAddRq{RequestID: spec.RequestID, Add: add})
}
