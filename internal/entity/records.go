package entity

import (
	"encoding/json"
	"strconv"
)

// Statuses written to the backend.
const (
	CartStatusOpen      = "open"
	CartStatusConverted = "converted"

	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPendingCash    = "pending_cash"
	OrderStatusPaid           = "paid"

	DeliveryStatusPending = "pending"
)

// RecordID accepts ids the backend returns either as strings, numbers or
// expanded relation objects ({"id": ...}).
type RecordID string

func (r *RecordID) UnmarshalJSON(data []byte) error {
	*r = RecordID(ExtractID(data))
	return nil
}

func (r RecordID) String() string { return string(r) }

// ExtractID reads an id out of a raw JSON value: a string, a number, an object
// with an "id" field, or the first element of an array.
func ExtractID(data json.RawMessage) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	return IDOf(v)
}

// IDOf is ExtractID for already-decoded values.
func IDOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case map[string]any:
		return IDOf(val["id"])
	case []any:
		if len(val) > 0 {
			return IDOf(val[0])
		}
	}
	return ""
}

// CartRecord is the remote cart.
type CartRecord struct {
	ID         RecordID `json:"id"`
	Status     string   `json:"status,omitempty"`
	Currency   string   `json:"currency,omitempty"`
	CustomerID RecordID `json:"customer_id,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
	UpdatedAt  string   `json:"updated_at,omitempty"`
}

// CartItemRecord mirrors one local CartItem.
type CartItemRecord struct {
	ID        RecordID `json:"id"`
	CartID    RecordID `json:"cart_id"`
	ProductID RecordID `json:"product_id"`
	VariantID RecordID `json:"variant_id"`
	Quantity  float64  `json:"quantity"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
	Currency  string   `json:"currency,omitempty"`
}

// OrderRecord is the remote order header.
type OrderRecord struct {
	ID               RecordID `json:"id"`
	OrderNumber      string   `json:"order_number,omitempty"`
	CartID           string   `json:"cart_id,omitempty"`
	CustomerID       RecordID `json:"customer_id,omitempty"`
	Status           string   `json:"status,omitempty"`
	PaymentStatus    string   `json:"payment_status,omitempty"`
	PaymentReference string   `json:"payment_reference,omitempty"`
	Currency         string   `json:"currency,omitempty"`
	Subtotal         *float64 `json:"subtotal,omitempty"`
	Total            *float64 `json:"total,omitempty"`
	ItemCount        *int     `json:"item_count,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
}

// OrderItemRecord is a permanent order line copied from the cart.
type OrderItemRecord struct {
	ID        RecordID        `json:"id,omitempty"`
	OrderID   RecordID        `json:"order_id"`
	ProductID json.RawMessage `json:"product_id"`
	VariantID json.RawMessage `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice *float64        `json:"unit_price,omitempty"`
	LineTotal *float64        `json:"line_total,omitempty"`
	Currency  string          `json:"currency,omitempty"`
}

// ProductRef returns the product id whether the relation was expanded or not.
func (r OrderItemRecord) ProductRef() string { return ExtractID(r.ProductID) }

// VariantRef returns the variant id whether the relation was expanded or not.
func (r OrderItemRecord) VariantRef() string { return ExtractID(r.VariantID) }

// Address is the postal block shared by delivery and billing records.
type Address struct {
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	PostalCode   string `json:"postal_code"`
	City         string `json:"city"`
	Region       string `json:"region,omitempty"`
	Country      string `json:"country"`
}

// OrderDeliveryRecord is created once per order.
type OrderDeliveryRecord struct {
	ID             RecordID `json:"id,omitempty"`
	OrderID        RecordID `json:"order_id"`
	Status         string   `json:"status,omitempty"`
	RecipientName  string   `json:"recipient_name"`
	Address
	DeliveryMethod string `json:"delivery_method,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	ShippedAt      string `json:"shipped_at,omitempty"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
}

// OrderBillingRecord exists only when the buyer declared a distinct billing address.
type OrderBillingRecord struct {
	ID          RecordID `json:"id,omitempty"`
	OrderID     RecordID `json:"order_id"`
	BillingName string   `json:"billing_name"`
	CompanyName string   `json:"company_name,omitempty"`
	TaxID       string   `json:"tax_id,omitempty"`
	Address
}

// CustomerRecord is deduplicated by email.
type CustomerRecord struct {
	ID           RecordID `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	FirstName    string   `json:"first_name,omitempty"`
	LastName     string   `json:"last_name,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	AddressLine1 string   `json:"address_line1,omitempty"`
	AddressLine2 string   `json:"address_line2,omitempty"`
	ZipCode      string   `json:"zip_code,omitempty"`
	City         string   `json:"city,omitempty"`
	Region       string   `json:"region,omitempty"`
	CountryCode  string   `json:"country_code,omitempty"`
}

// DisplayName joins first and last name, falling back to Name.
func (c CustomerRecord) DisplayName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "" || c.LastName != "":
		return c.FirstName + c.LastName
	}
	return c.Name
}

// OrderDetails is an order fetched with its customer, items and delivery expanded.
type OrderDetails struct {
	OrderRecord
	Customer           *CustomerRecord      `json:"-"`
	Items              []OrderItemRecord    `json:"order_items,omitempty"`
	Delivery           *OrderDeliveryRecord `json:"-"`
	TotalProductsPrice *float64             `json:"total_products_price,omitempty"`
	ShippingPrice      *float64             `json:"shipping_price,omitempty"`
	TotalPrice         *float64             `json:"total_price,omitempty"`
}

// UnmarshalJSON decodes the relation fields, which the backend returns either
// as bare ids or as expanded objects (and order_delivery sometimes as a list).
func (d *OrderDetails) UnmarshalJSON(data []byte) error {
	type plain OrderDetails
	var aux struct {
		*plain
		CustomerRaw json.RawMessage `json:"customer_id"`
		DeliveryRaw json.RawMessage `json:"order_delivery"`
	}
	aux.plain = (*plain)(d)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	d.CustomerID = RecordID(ExtractID(aux.CustomerRaw))
	if len(aux.CustomerRaw) > 0 && aux.CustomerRaw[0] == '{' {
		var c CustomerRecord
		if err := json.Unmarshal(aux.CustomerRaw, &c); err == nil {
			d.Customer = &c
		}
	}

	if len(aux.DeliveryRaw) > 0 {
		switch aux.DeliveryRaw[0] {
		case '{':
			var del OrderDeliveryRecord
			if err := json.Unmarshal(aux.DeliveryRaw, &del); err == nil {
				d.Delivery = &del
			}
		case '[':
			var list []OrderDeliveryRecord
			if err := json.Unmarshal(aux.DeliveryRaw, &list); err == nil && len(list) > 0 {
				d.Delivery = &list[0]
			}
		}
	}
	return nil
}

// RawID encodes an id for a relation field; an empty id becomes null.
func RawID(id string) json.RawMessage {
	if id == "" {
		return json.RawMessage("null")
	}
	b, _ := json.Marshal(id)
	return b
}
