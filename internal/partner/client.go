package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/demobites/voice-order/internal/menu"
)

// Client submits placed orders to the partner commerce API.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	StoreID    string
	Token      string
}

func NewClient(baseURL, storeID, token string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    baseURL,
		StoreID:    storeID,
		Token:      token,
	}
}

// Enabled reports whether partner submission is configured.
func (c *Client) Enabled() bool {
	return c.BaseURL != "" && c.StoreID != ""
}

type Addon struct {
	ModifierGroupID   string  `json:"modifier_group_id"`
	ModifierGroupName string  `json:"modifier_group_name"`
	Quantity          int     `json:"quantity"`
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Price             int64   `json:"price"`
	Addons            []Addon `json:"addons"`
}

type LineItem struct {
	Quantity     int     `json:"quantity"`
	Notes        string  `json:"notes"`
	CategoryName string  `json:"category_name"`
	Addons       []Addon `json:"addons"`
	Price        int64   `json:"price"`
	Name         string  `json:"name"`
	ID           string  `json:"id"`
}

type Charges struct {
	Surcharge        int64 `json:"surcharge"`
	SmallOrderCharge int64 `json:"small_order_charge"`
	DeliveryFee      int64 `json:"delivery_fee"`
	TipForRestaurant int64 `json:"tip_for_restaurant"`
	CarryBagsCharge  int64 `json:"carry_bags_charge"`
	ServiceFee       int64 `json:"service_fee"`
	OtherCharge      int64 `json:"other_charge"`
	Tax              int64 `json:"tax"`
	DriverTips       int64 `json:"driver_tips"`
	PackageCharge    int64 `json:"package_charge"`
}

type DiscountEntry struct {
	DiscountValue      int64  `json:"discount_value"`
	DiscountPercentage int64  `json:"discount_percentage"`
	DiscountType       string `json:"discount_type"`
}

type Payment struct {
	Total         int64           `json:"total"`
	PaymentType   string          `json:"payment_type"`
	Charges       Charges         `json:"charges"`
	Discounts     []DiscountEntry `json:"discounts"`
	Subtotal      int64           `json:"subtotal"`
	PaymentStatus string          `json:"payment_status"`
}

type Customer struct {
	Phone     string `json:"phone"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	PhoneCode string `json:"phone_code"`
}

// OrderPayload is the partner API order shape. Money is in cents.
type OrderPayload struct {
	Notes               string     `json:"notes"`
	ExternalReferenceID string     `json:"external_reference_id"`
	Source              string     `json:"source"`
	FulfillmentType     string     `json:"fulfillment_type"`
	AggregatorOrderID   string     `json:"aggregator_order_id"`
	FriendlyID          string     `json:"friendly_id"`
	EstPickUpTime       string     `json:"est_pick_up_time"`
	PlacedOn            string     `json:"placed_on"`
	Payment             Payment    `json:"payment"`
	Utensils            bool       `json:"utensils"`
	Items               []LineItem `json:"items"`
	TotalCarryBags      int        `json:"total_carry_bags"`
	Customer            Customer   `json:"customer"`
}

func cents(v float64) int64 {
	return int64(v*100 + 0.5)
}

// Transform maps the internal order into the partner payload.
func Transform(order menu.Order, totals menu.Totals, now time.Time) OrderPayload {
	items := make([]LineItem, 0, len(order.Items))
	for idx, i := range order.Items {
		unit := i.UnitPrice
		if unit == 0 {
			unit = i.BasePrice
		}
		qty := i.Quantity
		if qty < 1 {
			qty = 1
		}
		items = append(items, LineItem{
			Quantity:     qty,
			CategoryName: "Food",
			Addons:       buildAddons(i.Modifiers),
			Price:        cents(unit),
			Name:         i.Name,
			ID:           fmt.Sprintf("ITEM-%d", idx+1),
		})
	}

	discountType := "FIXED_AMOUNT"
	return OrderPayload{
		Notes:               "Order placed via AI voice assistant",
		ExternalReferenceID: fmt.Sprintf("EXT-%d", rand.Intn(1_000_000)),
		Source:              "FOODHUB",
		FulfillmentType:     "COLLECTION",
		AggregatorOrderID:   fmt.Sprintf("AGG-%d", rand.Intn(1_000_000)),
		FriendlyID:          "ORD-0001",
		EstPickUpTime:       now.Add(30 * time.Minute).UTC().Format(time.RFC3339),
		PlacedOn:            now.UTC().Format(time.RFC3339),
		Payment: Payment{
			Total:       cents(totals.Total),
			PaymentType: "CASH",
			Discounts: []DiscountEntry{{
				DiscountValue: cents(totals.Discount),
				DiscountType:  discountType,
			}},
			Subtotal:      cents(totals.Subtotal),
			PaymentStatus: "PAID",
		},
		Utensils: true,
		Items:    items,
		Customer: Customer{
			Phone:     "441782444282",
			LastName:  "Customer",
			FirstName: "FOODHUB AI",
			Email:     "foodhubCustomer@example.com",
			PhoneCode: "14428",
		},
	}
}

func buildAddons(mods menu.ChosenModifiers) []Addon {
	if len(mods) == 0 {
		return []Addon{}
	}
	addons := make([]Addon, 0)
	counter := 1
	for group, choices := range mods {
		for _, c := range choices {
			addons = append(addons, Addon{
				ModifierGroupID:   group,
				ModifierGroupName: group,
				Quantity:          1,
				ID:                fmt.Sprintf("ADDON-%d", counter),
				Name:              c.Name,
				Price:             cents(c.PriceDelta),
				Addons:            []Addon{},
			})
			counter++
		}
	}
	return addons
}

// Submit posts the order to the partner store endpoint.
func (c *Client) Submit(ctx context.Context, order menu.Order, totals menu.Totals) error {
	if !c.Enabled() {
		return nil
	}
	payload := Transform(order, totals, time.Now())
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal partner order: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/stores/%s/orders", c.BaseURL, c.StoreID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("partner order post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("partner order rejected: status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
