package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

type orderJSON struct {
	ID             string              `json:"id"`
	Customer       order.Customer      `json:"customer"`
	Products       []order.LineItem    `json:"products"`
	TotalProducts  int                 `json:"totalProducts"`
	TotalQuantity  int                 `json:"totalQuantity"`
	GrandTotal     decimal.Decimal     `json:"grandTotal"`
	ShippingMethod string              `json:"shippingMethod"`
	PaymentMethod  string              `json:"paymentMethod"`
	PaymentStatus  order.PaymentStatus `json:"paymentStatus"`
	Status         order.Status        `json:"status"`
	PaymentRefs    []string            `json:"paymentRefs"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

func convertOrder(o *order.Order) orderJSON {
	out := orderJSON{
		ID:             o.ID,
		Customer:       o.Customer,
		Products:       o.Products,
		TotalProducts:  o.TotalProducts,
		TotalQuantity:  o.TotalQuantity,
		GrandTotal:     o.GrandTotal,
		ShippingMethod: o.ShippingMethod,
		PaymentMethod:  o.PaymentMethod,
		PaymentStatus:  o.PaymentStatus,
		Status:         o.Status,
		PaymentRefs:    o.PaymentRefs,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if out.Products == nil {
		out.Products = []order.LineItem{}
	}
	if out.PaymentRefs == nil {
		out.PaymentRefs = []string{}
	}
	return out
}

type createOrderRequest struct {
	Customer       *order.Customer  `json:"customer"`
	Products       []order.LineItem `json:"products"`
	ShippingMethod string           `json:"shippingMethod"`
	PaymentMethod  string           `json:"paymentMethod"`
	Status         order.Status     `json:"status"`
}

type updateOrderRequest struct {
	Status        *order.Status        `json:"status"`
	PaymentStatus *order.PaymentStatus `json:"paymentStatus"`
	Products      []order.LineItem     `json:"products"`
}

type orderResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Order   orderJSON `json:"order"`
}

type orderListResponse struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Pages   int         `json:"pages"`
	Orders  []orderJSON `json:"orders"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.Orders.Create(r.Context(), order.CreateRequest{
		Customer:       req.Customer,
		Products:       req.Products,
		ShippingMethod: req.ShippingMethod,
		PaymentMethod:  req.PaymentMethod,
		Status:         req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{
		Success: true,
		Message: "Order created successfully",
		Order:   convertOrder(o),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// Unparsable paging values fall back to the service defaults.
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := h.Orders.List(r.Context(), order.Filter{
		Status:        order.Status(q.Get("status")),
		PaymentStatus: order.PaymentStatus(q.Get("paymentStatus")),
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := orderListResponse{
		Success: true,
		Count:   len(res.Orders),
		Total:   res.Total,
		Page:    res.Page,
		Pages:   res.Pages(),
		Orders:  make([]orderJSON, 0, len(res.Orders)),
	}
	for i := range res.Orders {
		out.Orders = append(out.Orders, convertOrder(&res.Orders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: convertOrder(o)})
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.Orders.Update(r.Context(), chi.URLParam(r, "id"), order.Patch{
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		Products:      req.Products,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{
		Success: true,
		Message: "Order updated successfully",
		Order:   convertOrder(o),
	})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.Orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Order deleted successfully"})
}
