package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hrygo/supportdesk/ai/conversation"
	"github.com/hrygo/supportdesk/store"
)

var (
	ordRefRegex  = regexp.MustCompile(`(?i)\bORD-(\d+)\b`)
	hashRefRegex = regexp.MustCompile(`#(\d+)\b`)
)

// OrderLookup reads orders from the logistics source.
type OrderLookup interface {
	GetOrder(ctx context.Context, id string) (*store.Order, error)
	ListOrders(ctx context.Context, find *store.FindOrder) ([]*store.Order, error)
}

// OrderHandler answers order status questions.
type OrderHandler struct {
	orders OrderLookup
}

var _ Handler = (*OrderHandler)(nil)

func NewOrderHandler(orders OrderLookup) *OrderHandler {
	return &OrderHandler{orders: orders}
}

func (*OrderHandler) Specialist() conversation.Specialist {
	return conversation.SpecialistOrder
}

func (h *OrderHandler) Handle(ctx context.Context, req *Request) (*Result, error) {
	ref, candidates := extractOrderRef(req.Text)
	customerID := req.State.CustomerID

	if ref != "" {
		order, err := h.find(ctx, candidates)
		if err != nil {
			return nil, err
		}
		if order == nil || (customerID != "" && order.CustomerID != customerID) {
			return &Result{
				Reply: fmt.Sprintf("I couldn't find order %s. Could you double-check the order number?", ref),
			}, nil
		}
		return &Result{Reply: describeOrder("Your order", order)}, nil
	}

	if customerID == "" {
		return &Result{Reply: "I can help with orders! Please provide your email or order number."}, nil
	}

	orders, err := h.orders.ListOrders(ctx, &store.FindOrder{CustomerID: &customerID, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", customerID, err)
	}
	if len(orders) == 0 {
		return &Result{Reply: "I found no active orders in your history."}, nil
	}
	return &Result{Reply: describeOrder("Your latest order", orders[0])}, nil
}

// find tries each candidate id and returns nil when none exists.
func (h *OrderHandler) find(ctx context.Context, candidates []string) (*store.Order, error) {
	for _, id := range candidates {
		order, err := h.orders.GetOrder(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get order %s: %w", id, err)
		}
		return order, nil
	}
	return nil, nil
}

func describeOrder(prefix string, o *store.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s) is currently %s.", prefix, o.ID, o.Items, o.Status)
	if o.EstimatedDelivery != "" {
		fmt.Fprintf(&b, " Estimated delivery: %s.", o.EstimatedDelivery)
	}
	b.WriteString("\nAnything else?")
	return b.String()
}

// extractOrderRef returns the reference as written plus the ids to look up.
func extractOrderRef(text string) (string, []string) {
	if m := ordRefRegex.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[0]), []string{"ORD-" + m[1]}
	}
	if m := hashRefRegex.FindStringSubmatch(text); m != nil {
		return m[0], []string{"ORD-" + m[1], m[1]}
	}
	return "", nil
}
