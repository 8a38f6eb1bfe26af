package qbxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const (
	xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>`
	onErrorStop    = "stopOnError"
)

type qbxmlDocument struct {
	XMLName xml.Name     `xml:"QBXML"`
	Msgs    msgsRequests `xml:"QBXMLMsgsRq"`
}

type msgsRequests struct {
	OnError string `xml:"onError,attr"`
	Request any
}

type fullNameRef struct {
	FullName string `xml:"FullName"`
}

func ref(name string) fullNameRef {
	return fullNameRef{FullName: name}
}

// render wraps one request element in the qbXML envelope for version v
func render(v Version, request any) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlDeclaration)
	fmt.Fprintf(&buf, `<?qbxml version="%s"?>`, v.String())

	doc := qbxmlDocument{Msgs: msgsRequests{OnError: onErrorStop, Request: request}}
	if err := xml.NewEncoder(&buf).Encode(doc); err != nil {
		return "", fmt.Errorf("qbxml: encode request: %w", err)
	}
	return buf.String(), nil
}
