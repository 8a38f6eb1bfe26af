package qbxml

import (
	"errors"
	"strings"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/xmltree"
)

// StatusDuplicateName is returned by QuickBooks when a list element with the
// same name already exists
const StatusDuplicateName = "3100"

// Status is the normalized outcome of one qbXML response
type Status struct {
	Success  bool
	Code     string
	Severity string
	Message  string
	TxnID    string
	TxnKind  string
}

// IsDuplicateName reports whether QuickBooks rejected a create because the
// name is already taken
func (s Status) IsDuplicateName() bool {
	return s.Code == StatusDuplicateName
}

func failure(code, message string) Status {
	return Status{Code: code, Severity: "Error", Message: message}
}

// Parse interprets a qbXML response. It never returns an error: empty,
// unparsable and status-less documents are reported through Status.Code as
// EMPTY_RESPONSE, PARSE_ERROR and NO_RS_NODE respectively.
func Parse(response string) Status {
	if strings.TrimSpace(response) == "" {
		return failure(ledger.ErrorCodeEmptyResponse, "Empty qbXML response.")
	}

	root, err := xmltree.ParseString(response)
	if err != nil {
		if errors.Is(err, xmltree.ErrEmptyDocument) {
			return failure(ledger.ErrorCodeEmptyResponse, "Empty qbXML response.")
		}
		return failure(ledger.ErrorCodeParse, "Unable to parse qbXML response: "+err.Error())
	}

	rs := findStatusNode(root)
	if rs == nil {
		return failure(ledger.ErrorCodeNoStatusNode, "No *Rs node found in qbXML response.")
	}
	return statusOf(rs)
}

func findStatusNode(root *xmltree.Node) *xmltree.Node {
	return root.Find(func(n *xmltree.Node) bool {
		if !strings.HasSuffix(n.Name, "Rs") {
			return false
		}
		_, ok := n.Attr("statusCode")
		return ok
	})
}

func statusOf(rs *xmltree.Node) Status {
	s := Status{
		Code:     attrOr(rs, "statusCode", "UNKNOWN"),
		Severity: attrOr(rs, "statusSeverity", "Error"),
		Message:  strings.TrimSpace(attrOr(rs, "statusMessage", "")),
		TxnKind:  strings.TrimSuffix(rs.Name, "Rs"),
	}
	s.Success = (s.Code == "0" || s.Code == "1") && !strings.EqualFold(s.Severity, "error")

	if id := rs.Find(func(n *xmltree.Node) bool {
		return (n.Name == "TxnID" || n.Name == "ListID") && n.Text != ""
	}); id != nil {
		s.TxnID = id.Text
	}
	return s
}

func attrOr(n *xmltree.Node, name, fallback string) string {
	if v, ok := n.Attr(name); ok {
		return v
	}
	return fallback
}
