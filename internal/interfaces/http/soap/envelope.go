// Package soap frames Web Connector calls: it decodes the method element of
// an incoming envelope and renders result and fault envelopes.
package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/xmltree"
)

const (
	// EnvelopeNS is the SOAP 1.1 envelope namespace
	EnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	// MethodNS is the namespace of the Web Connector service methods
	MethodNS = "http://developer.intuit.com/"
	// ContentType is sent with every envelope
	ContentType = "text/xml; charset=utf-8"

	xmlHeader = `<?xml version="1.0" encoding="utf-8"?>`
)

var (
	// ErrMissingBody is returned when the envelope has no Body element
	ErrMissingBody = errors.New("soap: envelope has no Body")
	// ErrEmptyBody is returned when the Body has no method element
	ErrEmptyBody = errors.New("soap: Body has no method element")
)

// Call is one decoded method invocation
type Call struct {
	Method string
	Params map[string]string
}

// Param returns the text of the named parameter, "" when absent
func (c Call) Param(name string) string {
	return c.Params[name]
}

// ParseCall decodes the envelope read from r. Element names are matched by
// local name so any namespace prefix is accepted.
func ParseCall(r io.Reader) (Call, error) {
	root, err := xmltree.Parse(r)
	if err != nil {
		return Call{}, err
	}

	body := root.Child("Body")
	if body == nil {
		return Call{}, ErrMissingBody
	}
	if len(body.Children) == 0 {
		return Call{}, ErrEmptyBody
	}

	method := body.Children[0]
	call := Call{Method: method.Name, Params: make(map[string]string, len(method.Children))}
	for _, p := range method.Children {
		call.Params[p.Name] = p.Text
	}
	return call, nil
}

// String renders a response whose result is a single string
func String(method, result string) []byte {
	return envelope(method, func(buf *bytes.Buffer) {
		escape(buf, result)
	})
}

// Strings renders a response whose result is a string array
func Strings(method string, values []string) []byte {
	return envelope(method, func(buf *bytes.Buffer) {
		for _, v := range values {
			buf.WriteString("<string>")
			escape(buf, v)
			buf.WriteString("</string>")
		}
	})
}

// Int renders a response whose result is an integer
func Int(method string, n int) []byte {
	return envelope(method, func(buf *bytes.Buffer) {
		buf.WriteString(strconv.Itoa(n))
	})
}

func envelope(method string, result func(*bytes.Buffer)) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	fmt.Fprintf(&buf, `<soap:Envelope xmlns:soap=%q xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">`, EnvelopeNS)
	buf.WriteString("<soap:Body>")
	fmt.Fprintf(&buf, `<%sResponse xmlns=%q>`, method, MethodNS)
	fmt.Fprintf(&buf, "<%sResult>", method)
	result(&buf)
	fmt.Fprintf(&buf, "</%sResult>", method)
	fmt.Fprintf(&buf, "</%sResponse>", method)
	buf.WriteString("</soap:Body></soap:Envelope>")
	return buf.Bytes()
}

// Fault renders a soap:Client fault carrying message
func Fault(message string) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	fmt.Fprintf(&buf, `<soap:Envelope xmlns:soap=%q>`, EnvelopeNS)
	buf.WriteString("<soap:Body><soap:Fault><faultcode>soap:Client</faultcode><faultstring>")
	escape(&buf, message)
	buf.WriteString("</faultstring></soap:Fault></soap:Body></soap:Envelope>")
	return buf.Bytes()
}

func escape(buf *bytes.Buffer, s string) {
	// writes to a bytes.Buffer cannot fail
	_ = xml.EscapeText(buf, []byte(s))
}
