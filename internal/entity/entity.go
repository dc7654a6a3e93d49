// Package entity defines the locally cached record types the offline
// layer works with. Every record is a union of a locally-authored entity
// and a server-confirmed one: LocalID is assigned on the device at
// creation time and never changes; ServerID appears once the server has
// acknowledged the record and is never reassigned afterwards.
package entity

import "time"

// Kind identifies an entity family in the mutation queue and the store.
type Kind string

const (
	KindCustomer  Kind = "customer"
	KindQuote     Kind = "quote"
	KindFloorPlan Kind = "floorplan"
)

// Meta carries the offline bookkeeping shared by all local records.
//
// Invariant: Synced is true if and only if ServerID is non-empty.
type Meta struct {
	LocalID   string    `json:"localId"`
	ServerID  string    `json:"serverId,omitempty"`
	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Customer is a locally cached customer record.
type Customer struct {
	Meta
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Quote statuses as the server understands them.
const (
	QuoteStatusDraft    = "draft"
	QuoteStatusSent     = "sent"
	QuoteStatusAccepted = "accepted"
	QuoteStatusDeclined = "declined"
)

// Quote is a locally cached quote record. CustomerID holds the local id
// of the customer the quote belongs to; the sync engine substitutes the
// customer's server id into outbound payloads once it is known.
type Quote struct {
	Meta
	CustomerID    string  `json:"customerId"`
	Trade         string  `json:"trade"`
	Materials     string  `json:"materials,omitempty"`
	MaterialsCost float64 `json:"materialsCost"`
	LaborCost     float64 `json:"laborCost"`
	Markup        float64 `json:"markup"`
	Total         float64 `json:"total"`
	Status        string  `json:"status"`
}

// FloorPlan is the metadata half of an attached plan document; the file
// bytes live under the Local Store's file primitive keyed by FileName.
type FloorPlan struct {
	Meta
	QuoteID     string `json:"quoteId"`
	Name        string `json:"name"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Pages       int    `json:"pages,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
}
