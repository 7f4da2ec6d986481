package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// addressParts are joined, in this order, into delivery_address
var addressParts = []string{
	"street", "number", "building", "floor", "entrance",
	"flatNumber", "district", "deliveryMainArea", "postcode", "city",
}

// MapYemeksepetiOrder maps a webhook payload onto a row. The payload may be
// the order itself or a {platform, orderId, data} wrapper around it; the
// untouched payload is always kept as RawPayload.
func MapYemeksepetiOrder(payload json.RawMessage) (*YemeksepetiOrder, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("yemeksepeti payload is not a JSON object: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("yemeksepeti payload is null")
	}

	src := body
	var wrapperOrderID interface{}
	if data, ok := body["data"].(map[string]interface{}); ok {
		src = data
		wrapperOrderID = body["orderId"]
	}

	address := object(path(src, "delivery", "address"))
	firstName := text(path(src, "customer", "firstName"))
	lastName := text(path(src, "customer", "lastName"))

	return &YemeksepetiOrder{
		OrderID: firstText(
			wrapperOrderID,
			src["orderId"],
			src["id"],
			src["code"],
			path(src, "foodOrder", "id"),
		),
		Platform: PlatformYemeksepeti,

		Token:                text(src["token"]),
		Code:                 text(src["code"]),
		PreOrder:             boolean(src["preOrder"]),
		ExpiryDate:           text(src["expiryDate"]),
		CreatedAtPlatform:    text(src["createdAt"]),
		PlatformRestaurantID: text(path(src, "platformRestaurant", "id")),

		CustomerID:        text(path(src, "customer", "id")),
		CustomerFirstName: firstName,
		CustomerLastName:  lastName,
		CustomerName:      fullName(firstName, lastName),
		CustomerPhone:     text(path(src, "customer", "mobilePhone")),

		PaymentType:   text(path(src, "payment", "type")),
		PaymentStatus: text(path(src, "payment", "status")),

		Subtotal:   number(path(src, "price", "subTotal")),
		VatTotal:   number(path(src, "price", "vatTotal")),
		TotalPrice: number(path(src, "price", "grandTotal")),
		Currency:   text(path(src, "localInfo", "currencySymbol")),

		DeliveryType:         text(src["expeditionType"]),
		DeliveryExpectedTime: text(path(src, "delivery", "expectedDeliveryTime")),
		DeliveryCity:         text(address["city"]),
		DeliveryPostcode:     text(address["postcode"]),
		DeliveryStreet:       text(address["street"]),
		DeliveryAddress:      joinAddress(address),
		City:                 text(address["city"]),

		Products: rawJSON(src["products"]),
		Comments: rawJSON(src["comments"]),

		RawPayload: payload,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func path(m map[string]interface{}, keys ...string) interface{} {
	var cur interface{} = m
	for _, k := range keys {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

func object(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// render formats a scalar as it appears in the payload. Objects, arrays
// and null render as "".
func render(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// truthy treats empty strings, zero, false and null as absent
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

// text returns a truthy scalar as a string pointer
func text(v interface{}) *string {
	if !truthy(v) {
		return nil
	}
	s := render(v)
	if s == "" {
		return nil
	}
	return &s
}

func firstText(values ...interface{}) *string {
	for _, v := range values {
		if s := text(v); s != nil {
			return s
		}
	}
	return nil
}

func boolean(v interface{}) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}

// number parses numeric strings and numbers; anything unparsable is absent
func number(v interface{}) *float64 {
	s := text(v)
	if s == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*s), 64)
	if err != nil {
		return nil
	}
	return &f
}

func fullName(first, last *string) *string {
	if first == nil && last == nil {
		return nil
	}
	var f, l string
	if first != nil {
		f = *first
	}
	if last != nil {
		l = *last
	}
	name := strings.TrimSpace(f + " " + l)
	return &name
}

func joinAddress(address map[string]interface{}) *string {
	var parts []string
	for _, key := range addressParts {
		s := render(address[key])
		if strings.TrimSpace(s) == "" {
			continue
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, " | ")
	return &joined
}

func rawJSON(v interface{}) json.RawMessage {
	if !truthy(v) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
