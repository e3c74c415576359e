package http

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
)

// apiResponse — единый конверт ответов API.
type apiResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Qty       int32  `json:"qty" binding:"required,gt=0"`
}

type addressRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Street    string `json:"street" binding:"required"`
	City      string `json:"city" binding:"required"`
	State     string `json:"state" binding:"required"`
	Zipcode   string `json:"zipcode" binding:"required"`
	Country   string `json:"country" binding:"required"`
	Phone     string `json:"phone" binding:"required,msisdn"`
}

type createOrderRequest struct {
	Method  string             `json:"method" binding:"required,oneof=card redirect cod"`
	Items   []orderItemRequest `json:"items" binding:"required,min=1,dive"`
	Address addressRequest     `json:"address" binding:"required"`
}

func (r createOrderRequest) toEngine() checkout.CreateOrderRequest {
	items := make([]checkout.ItemRequest, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, checkout.ItemRequest{
			ProductID: item.ProductID,
			Size:      item.Size,
			Qty:       item.Qty,
		})
	}
	return checkout.CreateOrderRequest{
		Method: domain.PaymentMethod(r.Method),
		Items:  items,
		Address: domain.ShippingAddress{
			FirstName: r.Address.FirstName,
			LastName:  r.Address.LastName,
			Email:     r.Address.Email,
			Street:    r.Address.Street,
			City:      r.Address.City,
			State:     r.Address.State,
			Zipcode:   r.Address.Zipcode,
			Country:   r.Address.Country,
			Phone:     r.Address.Phone,
		},
	}
}

type confirmCardRequest struct {
	IntentID string `json:"intent_id" binding:"required"`
}

type adminStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed processing shipped delivered cancelled"`
}

type orderItemResponse struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Size       string `json:"size,omitempty"`
	Qty        int32  `json:"qty"`
}

type addressResponse struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

type paymentResponse struct {
	ExternalID  string     `json:"external_id,omitempty"`
	Status      string     `json:"status,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	Status           string              `json:"status"`
	Method           string              `json:"method"`
	Items            []orderItemResponse `json:"items"`
	Address          addressResponse     `json:"address"`
	Payment          paymentResponse     `json:"payment"`
	Currency         string              `json:"currency"`
	SubtotalMinor    int64               `json:"subtotal_minor"`
	ShippingFeeMinor int64               `json:"shipping_fee_minor"`
	TotalMinor       int64               `json:"total_minor"`
	IsSettled        bool                `json:"is_settled"`
	SettledAt        *time.Time          `json:"settled_at,omitempty"`
	DeliveredAt      *time.Time          `json:"delivered_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:  item.ProductID,
			Name:       item.Name,
			PriceMinor: item.PriceMinor,
			Size:       item.Size,
			Qty:        item.Qty,
		})
	}

	var verifiedAt *time.Time
	if !order.Payment.VerifiedAt.IsZero() {
		t := order.Payment.VerifiedAt
		verifiedAt = &t
	}

	return orderResponse{
		ID:     order.ID,
		Status: string(order.Status),
		Method: string(order.Method),
		Items:  items,
		Address: addressResponse{
			FirstName: order.Address.FirstName,
			LastName:  order.Address.LastName,
			Email:     order.Address.Email,
			Street:    order.Address.Street,
			City:      order.Address.City,
			State:     order.Address.State,
			Zipcode:   order.Address.Zipcode,
			Country:   order.Address.Country,
			Phone:     order.Address.Phone,
		},
		Payment: paymentResponse{
			ExternalID:  order.Payment.ExternalID,
			Status:      order.Payment.Status,
			VerifiedAt:  verifiedAt,
			CancelledAt: order.Payment.CancelledAt,
		},
		Currency:         order.Currency,
		SubtotalMinor:    order.SubtotalMinor,
		ShippingFeeMinor: order.ShippingFeeMinor,
		TotalMinor:       order.TotalMinor,
		IsSettled:        order.IsSettled,
		SettledAt:        order.SettledAt,
		DeliveredAt:      order.DeliveredAt,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}

type initiationResponse struct {
	Method       string            `json:"method"`
	ExternalID   string            `json:"external_id,omitempty"`
	ClientSecret string            `json:"client_secret,omitempty"`
	CheckoutURL  string            `json:"checkout_url,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

func toInitiationResponse(init gateway.Initiation) initiationResponse {
	return initiationResponse{
		Method:       string(init.Method),
		ExternalID:   init.ExternalID,
		ClientSecret: init.ClientSecret,
		CheckoutURL:  init.CheckoutURL,
		Fields:       init.Fields,
	}
}

type paymentStatusResponse struct {
	OrderID   string          `json:"order_id"`
	Status    string          `json:"status"`
	Method    string          `json:"method"`
	IsSettled bool            `json:"is_settled"`
	SettledAt *time.Time      `json:"settled_at,omitempty"`
	Payment   paymentResponse `json:"payment"`
}

func toPaymentStatusResponse(view checkout.PaymentStatusView) paymentStatusResponse {
	var verifiedAt *time.Time
	if !view.Payment.VerifiedAt.IsZero() {
		t := view.Payment.VerifiedAt
		verifiedAt = &t
	}
	return paymentStatusResponse{
		OrderID:   view.OrderID,
		Status:    string(view.Status),
		Method:    string(view.Method),
		IsSettled: view.IsSettled,
		SettledAt: view.SettledAt,
		Payment: paymentResponse{
			ExternalID:  view.Payment.ExternalID,
			Status:      view.Payment.Status,
			VerifiedAt:  verifiedAt,
			CancelledAt: view.Payment.CancelledAt,
		},
	}
}
