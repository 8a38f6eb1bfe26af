// Package qwc renders the QuickBooks Web Connector application descriptor
// (.qwc) that registers this service with the Web Connector.
package qwc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Defaults for optional descriptor fields
const (
	DefaultAppName        = "190 Group QB Sync"
	DefaultAppDescription = "Sync inventory events from Convex into QuickBooks Desktop Enterprise."
	DefaultOwnerID        = "{57F3B9B1-86F1-4fcc-B1EE-566DE1813D20}"
	DefaultRunEvery       = 15
)

var (
	// ErrMissingAppURL is returned when no endpoint URL is configured
	ErrMissingAppURL = errors.New("qwc: app url is required")
	// ErrInvalidAppURL is returned when the endpoint URL is not absolute
	ErrInvalidAppURL = errors.New("qwc: app url must be a valid absolute URL")
	// ErrMissingUserName is returned when no Web Connector user is configured
	ErrMissingUserName = errors.New("qwc: user name is required")
)

// Options describe one Web Connector registration
type Options struct {
	AppName         string
	AppURL          string
	CertURL         string
	AppDescription  string
	AppSupport      string
	UserName        string
	OwnerID         string
	FileID          string
	RunEveryMinutes int
	ReadOnly        bool
}

type scheduler struct {
	RunEveryNMinutes int `xml:"RunEveryNMinutes"`
}

type descriptor struct {
	XMLName        xml.Name  `xml:"QBWCXML"`
	AppName        string    `xml:"AppName"`
	AppID          string    `xml:"AppID"`
	AppURL         string    `xml:"AppURL"`
	CertURL        string    `xml:"CertURL"`
	AppDescription string    `xml:"AppDescription"`
	AppSupport     string    `xml:"AppSupport"`
	UserName       string    `xml:"UserName"`
	OwnerID        string    `xml:"OwnerID"`
	FileID         string    `xml:"FileID"`
	QBType         string    `xml:"QBType"`
	Scheduler      scheduler `xml:"Scheduler"`
	IsReadOnly     bool      `xml:"IsReadOnly"`
}

// withDefaults validates opts and fills optional fields
func (o Options) withDefaults() (Options, error) {
	o.AppURL = strings.TrimSpace(o.AppURL)
	o.UserName = strings.TrimSpace(o.UserName)
	if o.AppURL == "" {
		return o, ErrMissingAppURL
	}
	parsed, err := url.Parse(o.AppURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return o, fmt.Errorf("%w: %q", ErrInvalidAppURL, o.AppURL)
	}
	if o.UserName == "" {
		return o, ErrMissingUserName
	}

	if o.CertURL == "" {
		o.CertURL = parsed.Scheme + "://" + parsed.Host
	}
	if o.AppName == "" {
		o.AppName = DefaultAppName
	}
	if o.AppDescription == "" {
		o.AppDescription = DefaultAppDescription
	}
	if o.AppSupport == "" {
		o.AppSupport = o.AppURL
	}
	if o.OwnerID == "" {
		o.OwnerID = DefaultOwnerID
	}
	if o.FileID == "" {
		o.FileID = "{" + uuid.NewString() + "}"
	}
	if o.RunEveryMinutes <= 0 {
		o.RunEveryMinutes = DefaultRunEvery
	}
	return o, nil
}

// Render returns the .qwc document for opts
func Render(opts Options) ([]byte, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	doc := descriptor{
		AppName:        o.AppName,
		AppURL:         o.AppURL,
		CertURL:        o.CertURL,
		AppDescription: o.AppDescription,
		AppSupport:     o.AppSupport,
		UserName:       o.UserName,
		OwnerID:        o.OwnerID,
		FileID:         o.FileID,
		QBType:         "QBFS",
		Scheduler:      scheduler{RunEveryNMinutes: o.RunEveryMinutes},
		IsReadOnly:     o.ReadOnly,
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("qwc: encode: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\"?>\n")
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteFile renders opts to path, creating parent directories
func WriteFile(path string, opts Options) error {
	data, err := Render(opts)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("qwc: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("qwc: write %s: %w", path, err)
	}
	return nil
}
