package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event types double as broker routing keys. Each bounded context gets its own
// topic; TopicFor maps a routing key to it.
const (
	EventOrderCreated   = "order.created"
	EventStockUpdated   = "stock.updated"
	EventStockLow       = "stock.low"
	EventProductCreated = "product.created"
	EventProductDeleted = "product.deleted"
)

const (
	TopicOrderEvents     = "order_events"
	TopicInventoryEvents = "inventory_events"
	TopicProductEvents   = "product_events"
)

func TopicFor(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "order."):
		return TopicOrderEvents
	case strings.HasPrefix(eventType, "stock."):
		return TopicInventoryEvents
	case strings.HasPrefix(eventType, "product."):
		return TopicProductEvents
	default:
		return TopicOrderEvents
	}
}

type OrderCreatedEvent struct {
	EventType string           `json:"event_type"`
	OrderID   string           `json:"order_id"`
	Data      OrderCreatedData `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

type OrderCreatedData struct {
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	Items       []OrderItem     `json:"items"`
}

type StockUpdatedEvent struct {
	EventType string           `json:"event_type"`
	StockID   string           `json:"stock_id"`
	Data      StockUpdatedData `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

type StockUpdatedData struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Available int    `json:"available_quantity"`
	Threshold int    `json:"low_stock_threshold"`
}

type ProductEvent struct {
	EventType string    `json:"event_type"`
	ProductID string    `json:"product_id"`
	Timestamp time.Time `json:"timestamp"`
}
