package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSynced    Status = "synced"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSynced, StatusCompleted:
		return true
	}
	return false
}

var ErrInvalidOrder = errors.New("invalid order")

// MaxOrderIDLen is the longest id every mirror backend can key on.
const MaxOrderIDLen = 36

// ProductSnapshot is the product as it looked at checkout. It is copied by
// value into the order so later catalog edits never change order history.
type ProductSnapshot struct {
	ID       int64  `json:"id" bson:"id" dynamodbav:"id"`
	Name     string `json:"name" bson:"name" dynamodbav:"name"`
	Price    int64  `json:"price" bson:"price" dynamodbav:"price"`
	ImageURL string `json:"imageUrl,omitempty" bson:"image_url,omitempty" dynamodbav:"image_url,omitempty"`
}

type LineItem struct {
	Product   ProductSnapshot `json:"product" bson:"product" dynamodbav:"product"`
	Quantity  int             `json:"quantity" bson:"quantity" dynamodbav:"quantity"`
	LineTotal int64           `json:"lineTotal" bson:"line_total" dynamodbav:"line_total"`
}

// Order is the unit of durability. Totals are in minor currency units.
type Order struct {
	ID        string     `json:"id" bson:"_id" dynamodbav:"order_id"`
	UserID    string     `json:"userId" bson:"user_id" dynamodbav:"user_id"`
	Items     []LineItem `json:"items" bson:"items" dynamodbav:"items"`
	Total     int64      `json:"total" bson:"total" dynamodbav:"total"`
	CreatedAt time.Time  `json:"createdAt" bson:"created_at" dynamodbav:"created_at"`
	Status    Status     `json:"status" bson:"status" dynamodbav:"status"`
}

// Clone returns a deep copy that shares no slices with o.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]LineItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	return c
}

// Validate checks the fields the order log needs to partition and find the order.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidOrder)
	}
	if o.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidOrder)
	}
	return nil
}

// NewOrderID returns a time-ordered UUIDv7 string.
func NewOrderID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewOrder builds a checkout order from cart lines. Missing line totals are
// computed from the snapshot price; the order total is the sum of line totals.
func NewOrder(userID string, lines []LineItem, now time.Time) (Order, error) {
	if userID == "" {
		return Order{}, fmt.Errorf("%w: missing user id", ErrInvalidOrder)
	}
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("%w: no items", ErrInvalidOrder)
	}

	items := make([]LineItem, len(lines))
	var total int64
	for i, line := range lines {
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d has quantity %d", ErrInvalidOrder, i, line.Quantity)
		}
		if line.LineTotal == 0 {
			line.LineTotal = line.Product.Price * int64(line.Quantity)
		}
		items[i] = line
		total += line.LineTotal
	}

	return Order{
		ID:        NewOrderID(),
		UserID:    userID,
		Items:     items,
		Total:     total,
		CreatedAt: now,
		Status:    StatusPending,
	}, nil
}

// CountPending returns how many orders are still waiting for the remote mirror.
func CountPending(orders []Order) int {
	n := 0
	for _, o := range orders {
		if o.Status == StatusPending {
			n++
		}
	}
	return n
}

// SortNewestFirst returns a copy of orders sorted by CreatedAt descending.
func SortNewestFirst(orders []Order) []Order {
	out := make([]Order, len(orders))
	copy(out, orders)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
