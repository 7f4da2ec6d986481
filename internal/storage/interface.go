// Package storage persists inbound marketplace orders.
//
// Only Yemeksepeti orders are stored. OrderStore has memory, SQLite and
// PostgreSQL implementations in the subpackages; all of them share the
// yemeksepeti_orders column layout described by YemeksepetiOrder.
package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// OrderStore saves mapped orders
type OrderStore interface {
	SaveYemeksepetiOrder(ctx context.Context, order *YemeksepetiOrder) error
	Health(ctx context.Context) error
	Close() error
}

// PlatformYemeksepeti is the platform value stored with every row
const PlatformYemeksepeti = "YEMEKSEPETI"

// Table is the table every store writes to
const Table = "yemeksepeti_orders"

// YemeksepetiOrder is one yemeksepeti_orders row. Nil pointers are stored
// as NULL.
type YemeksepetiOrder struct {
	OrderID  *string
	Platform string

	Token                *string
	Code                 *string
	PreOrder             *bool
	ExpiryDate           *string
	CreatedAtPlatform    *string
	PlatformRestaurantID *string

	CustomerID        *string
	CustomerFirstName *string
	CustomerLastName  *string
	CustomerName      *string
	CustomerPhone     *string

	PaymentType   *string
	PaymentStatus *string

	Subtotal   *float64
	VatTotal   *float64
	TotalPrice *float64
	Currency   *string

	DeliveryType         *string
	DeliveryExpectedTime *string
	DeliveryCity         *string
	DeliveryPostcode     *string
	DeliveryStreet       *string
	DeliveryAddress      *string
	City                 *string

	Products json.RawMessage
	Comments json.RawMessage

	RawPayload json.RawMessage
	ReceivedAt time.Time
}

// Columns lists the column names in the order Values returns them
var Columns = []string{
	"order_id", "platform",
	"token", "code", "pre_order", "expiry_date", "created_at_platform", "platform_restaurant_id",
	"customer_id", "customer_first_name", "customer_last_name", "customer_name", "customer_phone",
	"payment_type", "payment_status",
	"subtotal", "vat_total", "total_price", "currency",
	"delivery_type", "delivery_expected_time", "delivery_city", "delivery_postcode", "delivery_street",
	"delivery_address", "city",
	"products", "comments",
	"raw_payload", "received_at",
}

// Values returns the row values matching Columns. JSON columns are passed
// as strings, or nil when absent.
func (o *YemeksepetiOrder) Values() []interface{} {
	return []interface{}{
		o.OrderID, o.Platform,
		o.Token, o.Code, o.PreOrder, o.ExpiryDate, o.CreatedAtPlatform, o.PlatformRestaurantID,
		o.CustomerID, o.CustomerFirstName, o.CustomerLastName, o.CustomerName, o.CustomerPhone,
		o.PaymentType, o.PaymentStatus,
		o.Subtotal, o.VatTotal, o.TotalPrice, o.Currency,
		o.DeliveryType, o.DeliveryExpectedTime, o.DeliveryCity, o.DeliveryPostcode, o.DeliveryStreet,
		o.DeliveryAddress, o.City,
		jsonColumn(o.Products), jsonColumn(o.Comments),
		jsonColumn(o.RawPayload), o.ReceivedAt,
	}
}

func jsonColumn(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// InsertStatement builds the INSERT for Table. placeholder renders the
// n-th (1-based) bind parameter for the target driver.
func InsertStatement(placeholder func(n int) string) string {
	params := make([]string, len(Columns))
	for i := range Columns {
		params[i] = placeholder(i + 1)
	}
	return "INSERT INTO " + Table + " (" + strings.Join(Columns, ", ") + ") VALUES (" + strings.Join(params, ", ") + ")"
}
