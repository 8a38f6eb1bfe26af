// Package qbxml renders inventory events into QuickBooks qbXML requests and
// interprets the responses the Web Connector relays back.
//
// Builders are pure: they take an event plus the negotiated qbXML version and
// either return a complete request document or a *shared.DomainError
// describing why the event cannot be expressed. Parsers never fail on
// unexpected-but-valid input; malformed responses become typed failure
// results.
package qbxml
