package model

import (
	"fmt"
	"strings"
	"time"
)

// ActivityType enumerates the marketplace event kinds held in the activity index.
type ActivityType string

const (
	ActivitySale      ActivityType = "sale"
	ActivityMint      ActivityType = "mint"
	ActivityTransfer  ActivityType = "transfer"
	ActivityBid       ActivityType = "bid"
	ActivityBidCancel ActivityType = "bid_cancel"
	ActivityAsk       ActivityType = "ask"
	ActivityAskCancel ActivityType = "ask_cancel"
)

// ValidActivityTypes returns all activity types accepted by the index.
func ValidActivityTypes() []ActivityType {
	return []ActivityType{
		ActivitySale, ActivityMint, ActivityTransfer,
		ActivityBid, ActivityBidCancel, ActivityAsk, ActivityAskCancel,
	}
}

// IsValid checks if the activity type is one of the known kinds.
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivitySale, ActivityMint, ActivityTransfer,
		ActivityBid, ActivityBidCancel, ActivityAsk, ActivityAskCancel:
		return true
	}
	return false
}

// FillTypes are the activity types that represent a completed fill.
// Used by the stats queries.
func FillTypes() []ActivityType {
	return []ActivityType{ActivitySale, ActivityMint}
}

// TokenInfo is the token metadata denormalized onto an activity document.
type TokenInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
	Media string `json:"media,omitempty"`
}

// CollectionInfo is the collection metadata denormalized onto an activity document.
type CollectionInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// PricingInfo carries the order pricing attached to fill and order events.
type PricingInfo struct {
	Price           string  `json:"price,omitempty"`
	PriceDecimal    float64 `json:"priceDecimal,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	Value           string  `json:"value,omitempty"`
	ValueDecimal    float64 `json:"valueDecimal,omitempty"`
	NormalizedValue string  `json:"normalizedValue,omitempty"`
}

// OrderInfo references the marketplace order that produced an activity.
type OrderInfo struct {
	ID       string `json:"id,omitempty"`
	SourceID string `json:"sourceId,omitempty"`
	Side     string `json:"side,omitempty"`
}

// EventInfo references the on-chain event that produced an activity.
type EventInfo struct {
	TxHash    string `json:"txHash,omitempty"`
	BlockHash string `json:"blockHash,omitempty"`
	LogIndex  int    `json:"logIndex,omitempty"`
}

// ActivityDocument is the indexed unit. Its ID is globally unique within the
// logical index and is the sole key for upsert and delete; identity is
// independent of which physical index generation holds the document.
type ActivityDocument struct {
	ID          string          `json:"id"`
	Type        ActivityType    `json:"type"`
	Contract    string          `json:"contract,omitempty"`
	FromAddress string          `json:"fromAddress,omitempty"`
	ToAddress   string          `json:"toAddress,omitempty"`
	Amount      string          `json:"amount,omitempty"`
	Token       *TokenInfo      `json:"token,omitempty"`
	Collection  *CollectionInfo `json:"collection,omitempty"`
	Pricing     *PricingInfo    `json:"pricing,omitempty"`
	Order       *OrderInfo      `json:"order,omitempty"`
	Event       *EventInfo      `json:"event,omitempty"`

	// Timestamp is the event time in epoch seconds.
	Timestamp int64 `json:"timestamp"`

	// CreatedAt is the ingestion time.
	CreatedAt time.Time `json:"createdAt"`

	// IndexedAt is stamped by the writer on every save.
	IndexedAt time.Time `json:"indexedAt,omitempty"`
}

// DocumentID derives the stable document key for a source event. Redelivered
// events map to the same key, which is what makes upsert idempotent.
func DocumentID(txHash string, logIndex int, kind ActivityType) string {
	return fmt.Sprintf("%s:%d:%s", strings.ToLower(txHash), logIndex, kind)
}

// Validate checks the fields every indexed document must carry.
func (d *ActivityDocument) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("activity document requires an id")
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("activity document %s has unknown type %q", d.ID, d.Type)
	}
	if d.Timestamp <= 0 {
		return fmt.Errorf("activity document %s requires a timestamp", d.ID)
	}
	return nil
}
