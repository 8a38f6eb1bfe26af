package qbxml

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/shared"
)

const (
	minTransferMajor     = 10
	minSiteRefMajor      = 10
	minExternalGUIDMajor = 9
)

// cogsRoots are account roots QuickBooks refuses as deep paths on adjustments
var cogsRoots = map[string]bool{
	"cost of goods sold": true,
	"cogs":               true,
}

type transferInventoryAddRq struct {
	XMLName   xml.Name             `xml:"TransferInventoryAddRq"`
	RequestID string               `xml:"requestID,attr"`
	Add       transferInventoryAdd `xml:"TransferInventoryAdd"`
}

type transferInventoryAdd struct {
	TxnDate  string         `xml:"TxnDate"`
	FromSite fullNameRef    `xml:"FromInventorySiteRef"`
	ToSite   fullNameRef    `xml:"ToInventorySiteRef"`
	Memo     string         `xml:"Memo,omitempty"`
	Lines    []transferLine `xml:"TransferInventoryLineAdd"`
}

type transferLine struct {
	Item     fullNameRef `xml:"ItemRef"`
	Quantity string      `xml:"QuantityToTransfer"`
}

type inventoryAdjustmentAddRq struct {
	XMLName   xml.Name               `xml:"InventoryAdjustmentAddRq"`
	RequestID string                 `xml:"requestID,attr"`
	Add       inventoryAdjustmentAdd `xml:"InventoryAdjustmentAdd"`
}

type inventoryAdjustmentAdd struct {
	Account      fullNameRef      `xml:"AccountRef"`
	TxnDate      string           `xml:"TxnDate"`
	Site         *fullNameRef     `xml:"InventorySiteRef,omitempty"`
	Memo         string           `xml:"Memo,omitempty"`
	ExternalGUID string           `xml:"ExternalGUID,omitempty"`
	Lines        []adjustmentLine `xml:"InventoryAdjustmentLineAdd"`
}

type adjustmentLine struct {
	Item       fullNameRef        `xml:"ItemRef"`
	Adjustment quantityAdjustment `xml:"QuantityAdjustment"`
}

type quantityAdjustment struct {
	NewQuantity        *string `xml:"NewQuantity,omitempty"`
	QuantityDifference *string `xml:"QuantityDifference,omitempty"`
}

// Build renders evt as a qbXML request for version v.
// defaultAccount is used for adjustments whose lines carry no account override.
func Build(evt ledger.Event, v Version, defaultAccount string) (string, error) {
	if strings.TrimSpace(evt.ID) == "" {
		return "", shared.NewDomainError(shared.CodeInvalidEvent, "Event is missing eventId.")
	}
	if len(evt.Lines) == 0 {
		return "", shared.NewDomainError(shared.CodeInvalidEvent,
			fmt.Sprintf("Event %s has no lines to send.", evt.ID))
	}
	if strings.TrimSpace(evt.EffectiveDate) == "" {
		return "", shared.NewDomainError(shared.CodeInvalidEvent,
			fmt.Sprintf("Event %s is missing effectiveDate.", evt.ID))
	}

	var (
		request any
		err     error
	)
	switch evt.Kind {
	case ledger.EventKindTransfer:
		request, err = buildTransfer(evt, v)
	case ledger.EventKindAdjustment:
		request, err = buildAdjustment(evt, v, defaultAccount)
	default:
		err = shared.NewDomainError(shared.CodeInvalidEvent,
			fmt.Sprintf("Unsupported event type for qbXML: %q", evt.Kind))
	}
	if err != nil {
		return "", err
	}
	return render(v, request)
}

func buildTransfer(evt ledger.Event, v Version) (*transferInventoryAddRq, error) {
	if !v.AtLeast(minTransferMajor) {
		return nil, shared.NewDomainError(shared.CodeUnsupportedVersion,
			fmt.Sprintf("TransferInventoryAdd requires qbXML %d.0 or later (negotiated %s).", minTransferMajor, v))
	}

	var from, to string
	lines := make([]transferLine, 0, len(evt.Lines))
	for _, line := range evt.Lines {
		item := line.ItemName()
		if item == "" {
			return nil, shared.NewDomainError(shared.CodeInvalidEvent, "Event line is missing qbItemFullName/sku.")
		}
		lineFrom := strings.TrimSpace(line.FromSite)
		lineTo := strings.TrimSpace(line.ToSite)
		if lineFrom == "" || lineTo == "" {
			return nil, shared.NewDomainError(shared.CodeMissingSite,
				fmt.Sprintf("Transfer line for %s is missing from/to site mapping.", item))
		}
		if from == "" {
			from, to = lineFrom, lineTo
		} else if lineFrom != from || lineTo != to {
			return nil, shared.NewDomainError(shared.CodeSiteConflict,
				fmt.Sprintf("Transfer event %s mixes site pairs %s -> %s and %s -> %s; one pair per transaction.",
					evt.ID, from, to, lineFrom, lineTo))
		}

		qty, err := formatQuantity("QuantityToTransfer", line.Qty.String())
		if err != nil {
			return nil, err
		}
		lines = append(lines, transferLine{Item: ref(item), Quantity: qty})
	}

	return &transferInventoryAddRq{
		RequestID: evt.ID,
		Add: transferInventoryAdd{
			TxnDate:  strings.TrimSpace(evt.EffectiveDate),
			FromSite: ref(from),
			ToSite:   ref(to),
			Memo:     memoFor(evt),
			Lines:    lines,
		},
	}, nil
}

func buildAdjustment(evt ledger.Event, v Version, defaultAccount string) (*inventoryAdjustmentAddRq, error) {
	account := ResolveAdjustmentAccount(evt.Lines, defaultAccount)
	if account == "" {
		return nil, shared.NewDomainError(shared.CodeMissingAccountMapping,
			"Adjustment event has no account mapping and no default account configured.")
	}

	add := inventoryAdjustmentAdd{
		Account: ref(account),
		TxnDate: strings.TrimSpace(evt.EffectiveDate),
		Memo:    memoFor(evt),
	}

	if v.AtLeast(minSiteRefMajor) {
		site, err := adjustmentSite(evt)
		if err != nil {
			return nil, err
		}
		add.Site = &fullNameRef{FullName: site}
	}
	if v.AtLeast(minExternalGUIDMajor) {
		add.ExternalGUID = ExternalGUID(evt.IdempotencySeed())
	}

	add.Lines = make([]adjustmentLine, 0, len(evt.Lines))
	for _, line := range evt.Lines {
		item := line.ItemName()
		if item == "" {
			return nil, shared.NewDomainError(shared.CodeInvalidEvent, "Event line is missing qbItemFullName/sku.")
		}
		var qa quantityAdjustment
		if line.NewQty.IsSet() {
			qty, err := formatQuantity("NewQuantity", line.NewQty.String())
			if err != nil {
				return nil, err
			}
			qa.NewQuantity = &qty
		} else {
			qty, err := formatQuantity("QuantityDifference", line.Qty.String())
			if err != nil {
				return nil, err
			}
			qa.QuantityDifference = &qty
		}
		add.Lines = append(add.Lines, adjustmentLine{Item: ref(item), Adjustment: qa})
	}

	return &inventoryAdjustmentAddRq{RequestID: evt.ID, Add: add}, nil
}

// adjustmentSite returns the single site every line agrees on
func adjustmentSite(evt ledger.Event) (string, error) {
	var site string
	for _, line := range evt.Lines {
		lineSite := strings.TrimSpace(line.Site)
		if lineSite == "" {
			return "", shared.NewDomainError(shared.CodeMissingSite,
				fmt.Sprintf("Adjustment line for %s is missing site mapping.", line.ItemName()))
		}
		if site == "" {
			site = lineSite
		} else if lineSite != site {
			return "", shared.NewDomainError(shared.CodeSiteConflict,
				fmt.Sprintf("Adjustment event %s mixes sites %s and %s; one site per transaction.",
					evt.ID, site, lineSite))
		}
	}
	return site, nil
}

// ResolveAdjustmentAccount picks the first line-level override, else
// defaultAccount, and collapses deep cost-of-goods paths to their root.
func ResolveAdjustmentAccount(lines []ledger.Line, defaultAccount string) string {
	account := strings.TrimSpace(defaultAccount)
	for _, line := range lines {
		if override := strings.TrimSpace(line.Account); override != "" {
			account = override
			break
		}
	}
	root, _, deep := strings.Cut(account, ":")
	root = strings.TrimSpace(root)
	if deep && cogsRoots[cases.Fold().String(root)] {
		return root
	}
	return account
}

// ExternalGUID derives the deterministic GUID QuickBooks stores with a
// transaction, in its "{XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX}" shape.
func ExternalGUID(seed string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed))
	return "{" + strings.ToUpper(id.String()) + "}"
}

func memoFor(evt ledger.Event) string {
	pieces := make([]string, 0, 4)
	for _, p := range []string{string(evt.Kind), evt.ID, evt.CreatedBy, evt.Memo} {
		if p = strings.TrimSpace(p); p != "" {
			pieces = append(pieces, p)
		}
	}
	return truncateRunes(strings.Join(pieces, " "), maxMemoLength)
}
