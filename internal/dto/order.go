package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/gobady/internal/entity"
)

// OrderLineRequest is one (product, quantity) pair of a checkout.
type OrderLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	Name            string             `json:"name"`
	Surname         string             `json:"surname"`
	NationalID      string             `json:"national_id"`
	Phone           string             `json:"phone"`
	Email           string             `json:"email"`
	InterRegional   bool               `json:"inter_regional"`
	Department      string             `json:"department"`
	Province        string             `json:"province"`
	District        string             `json:"district"`
	Address         string             `json:"address"`
	PaymentMethodID int64              `json:"payment_method_id"`
	Lines           []OrderLineRequest `json:"lines"`
}

// OrderLineResponse is an order line as exposed via transport layers.
type OrderLineResponse struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            int64                  `json:"id"`
	Code          string                 `json:"code"`
	CreatedAt     time.Time              `json:"created_at"`
	Name          string                 `json:"name"`
	Surname       string                 `json:"surname"`
	NationalID    string                 `json:"national_id,omitempty"`
	Phone         string                 `json:"phone,omitempty"`
	Email         string                 `json:"email"`
	InterRegional bool                   `json:"inter_regional"`
	Department    string                 `json:"department,omitempty"`
	Province      string                 `json:"province,omitempty"`
	District      string                 `json:"district,omitempty"`
	Address       string                 `json:"address,omitempty"`
	Total         decimal.Decimal        `json:"total"`
	PaymentMethod *PaymentMethodResponse `json:"payment_method,omitempty"`
	Lines         []OrderLineResponse    `json:"lines"`
}

// NewOrderResponse maps an order entity with its loaded relations.
func NewOrderResponse(order *entity.Order) OrderResponse {
	res := OrderResponse{
		ID:            order.ID,
		Code:          order.Code,
		CreatedAt:     order.CreatedAt,
		Name:          order.Name,
		Surname:       order.Surname,
		NationalID:    order.NationalID,
		Phone:         order.Phone,
		Email:         order.Email,
		InterRegional: order.InterRegional,
		Department:    order.Department,
		Province:      order.Province,
		District:      order.District,
		Address:       order.Address,
		Total:         order.Total,
		Lines:         make([]OrderLineResponse, 0, len(order.Lines)),
	}
	if order.PaymentMethod != nil {
		pm := NewPaymentMethodResponse(order.PaymentMethod)
		res.PaymentMethod = &pm
	}
	for _, line := range order.Lines {
		item := OrderLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal(),
		}
		if line.Product != nil {
			item.ProductName = line.Product.Name
		}
		res.Lines = append(res.Lines, item)
	}
	return res
}
