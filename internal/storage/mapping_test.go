package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullOrder = `{
	"token": "tok-1",
	"code": "ABC123",
	"preOrder": false,
	"expiryDate": "2024-05-01T12:30:00Z",
	"createdAt": "2024-05-01T12:00:00Z",
	"platformRestaurant": {"id": "rest-9"},
	"customer": {"id": "c-1", "firstName": "Ayse", "lastName": "Yilmaz", "mobilePhone": "+905551112233"},
	"payment": {"type": "card", "status": "paid"},
	"price": {"subTotal": "100.50", "vatTotal": "8.04", "grandTotal": "108.54"},
	"localInfo": {"currencySymbol": "TRY"},
	"expeditionType": "delivery",
	"delivery": {
		"expectedDeliveryTime": "2024-05-01T12:45:00Z",
		"address": {"street": "Ataturk Cd", "number": 12, "building": "", "floor": "3", "city": "Istanbul", "postcode": "34000"}
	},
	"products": [{"id": "p1", "quantity": 2}],
	"comments": {"customerComment": "no onions"}
}`

func TestMapYemeksepetiOrder_FullPayload(t *testing.T) {
	order, err := MapYemeksepetiOrder(json.RawMessage(fullOrder))
	require.NoError(t, err)

	assert.Equal(t, PlatformYemeksepeti, order.Platform)
	require.NotNil(t, order.OrderID)
	assert.Equal(t, "ABC123", *order.OrderID, "code is used when no id is present")
	assert.Equal(t, "tok-1", *order.Token)
	require.NotNil(t, order.PreOrder)
	assert.False(t, *order.PreOrder)
	assert.Equal(t, "rest-9", *order.PlatformRestaurantID)
	assert.Equal(t, "Ayse Yilmaz", *order.CustomerName)
	assert.Equal(t, "+905551112233", *order.CustomerPhone)
	assert.Equal(t, "card", *order.PaymentType)
	assert.InDelta(t, 100.50, *order.Subtotal, 0.0001)
	assert.InDelta(t, 8.04, *order.VatTotal, 0.0001)
	assert.InDelta(t, 108.54, *order.TotalPrice, 0.0001)
	assert.Equal(t, "TRY", *order.Currency)
	assert.Equal(t, "delivery", *order.DeliveryType)
	assert.Equal(t, "Istanbul", *order.DeliveryCity)
	assert.Equal(t, "Istanbul", *order.City)
	assert.Equal(t, "34000", *order.DeliveryPostcode)
	assert.Equal(t, "Ataturk Cd | 12 | 3 | 34000 | Istanbul", *order.DeliveryAddress)
	assert.JSONEq(t, `[{"id":"p1","quantity":2}]`, string(order.Products))
	assert.JSONEq(t, `{"customerComment":"no onions"}`, string(order.Comments))
	assert.JSONEq(t, fullOrder, string(order.RawPayload))
	assert.False(t, order.ReceivedAt.IsZero())
}

func TestMapYemeksepetiOrder_OrderIDPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"wrapper order id wins", `{"platform":"yemeksepeti","orderId":"w-1","data":{"orderId":"o-1","id":"i-1"}}`, "w-1"},
		{"order id before id", `{"orderId":"o-1","id":"i-1","code":"c-1"}`, "o-1"},
		{"id before code", `{"id":"i-1","code":"c-1"}`, "i-1"},
		{"food order id last", `{"foodOrder":{"id":"f-1"}}`, "f-1"},
		{"numeric id", `{"id":98765}`, "98765"},
		{"empty wrapper id falls through", `{"orderId":"","data":{"id":"i-2"}}`, "i-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := MapYemeksepetiOrder(json.RawMessage(tt.payload))
			require.NoError(t, err)
			require.NotNil(t, order.OrderID)
			assert.Equal(t, tt.want, *order.OrderID)
		})
	}
}

func TestMapYemeksepetiOrder_WrapperKeepsRawPayload(t *testing.T) {
	payload := `{"platform":"yemeksepeti","orderId":"w-1","data":{"customer":{"firstName":"Ali"}}}`

	order, err := MapYemeksepetiOrder(json.RawMessage(payload))
	require.NoError(t, err)

	assert.JSONEq(t, payload, string(order.RawPayload))
	assert.Equal(t, "Ali", *order.CustomerName)
	assert.Nil(t, order.CustomerLastName)
}

func TestMapYemeksepetiOrder_MissingFieldsAreNil(t *testing.T) {
	order, err := MapYemeksepetiOrder(json.RawMessage(`{"price":{"subTotal":"not-a-number","grandTotal":"0"}}`))
	require.NoError(t, err)

	assert.Nil(t, order.OrderID)
	assert.Nil(t, order.CustomerName)
	assert.Nil(t, order.PreOrder)
	assert.Nil(t, order.Subtotal)
	assert.Nil(t, order.DeliveryAddress)
	assert.Nil(t, order.Products)

	// "0" is a non-empty string, so it still parses
	require.NotNil(t, order.TotalPrice)
	assert.Equal(t, 0.0, *order.TotalPrice)
}

func TestMapYemeksepetiOrder_RejectsNonObjects(t *testing.T) {
	for _, payload := range []string{`not json`, `[1,2]`, `null`} {
		_, err := MapYemeksepetiOrder(json.RawMessage(payload))
		assert.Error(t, err, payload)
	}
}

func TestYemeksepetiOrder_ValuesMatchColumns(t *testing.T) {
	order, err := MapYemeksepetiOrder(json.RawMessage(`{"id":"i-1"}`))
	require.NoError(t, err)

	values := order.Values()
	require.Len(t, values, len(Columns))
	assert.Equal(t, order.OrderID, values[0])
	assert.Nil(t, values[len(values)-4], "absent products column is NULL")
	assert.Equal(t, `{"id":"i-1"}`, values[len(values)-2])
}
