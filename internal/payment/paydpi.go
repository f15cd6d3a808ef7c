// Package payment wraps the PayDPI hosted checkout gateway used to
// collect fees for paid government services.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionRejected      = errors.New("paydpi: checkout session rejected")
	ErrVerificationRejected = errors.New("paydpi: order verification rejected")
)

// Order statuses reported by the gateway.
const (
	OrderStatusCaptured = "CAPTURED"

	// Gateway order identifiers are capped at 40 characters
	maxOrderIDLength = 40
)

type Config struct {
	BaseURL     string
	MerchantID  string
	APIUsername string
	APIPassword string
	APIVersion  string
	CallbackURL string
	Timeout     time.Duration
}

// Client talks to the PayDPI REST API with basic authentication.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type CheckoutSession struct {
	SessionID   string
	OrderID     string
	CheckoutURL string
}

type OrderResult struct {
	OrderID  string
	Status   string
	Amount   float64
	Currency string
}

// Captured reports whether the gateway has captured the payment.
func (r OrderResult) Captured() bool {
	return r.Status == OrderStatusCaptured
}

// NewOrderID derives a gateway-safe order identifier from a transaction
// reference, keeping within the gateway's length cap.
func NewOrderID(transactionID string) string {
	compact := strings.ReplaceAll(transactionID, "-", "")
	if len(compact) > 20 {
		compact = compact[:20]
	}
	if compact == "" {
		compact = strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	}

	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if len(stamp) > 8 {
		stamp = stamp[len(stamp)-8:]
	}

	orderID := fmt.Sprintf("ORD_%s_%s", compact, stamp)
	if len(orderID) > maxOrderIDLength {
		orderID = orderID[:maxOrderIDLength]
	}
	return orderID
}

type sessionRequest struct {
	APIOperation string      `json:"apiOperation"`
	Interaction  interaction `json:"interaction"`
	Order        order       `json:"order"`
}

type interaction struct {
	Merchant       merchantName   `json:"merchant"`
	Operation      string         `json:"operation"`
	DisplayControl displayControl `json:"displayControl"`
	ReturnURL      string         `json:"returnUrl"`
}

type merchantName struct {
	Name string `json:"name"`
}

type displayControl struct {
	BillingAddress string `json:"billingAddress"`
	CustomerEmail  string `json:"customerEmail"`
	Shipping       string `json:"shipping"`
}

type order struct {
	ID          string `json:"id"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type gatewayResponse struct {
	Result  string `json:"result"`
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
	Order struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"order"`
	Error struct {
		Cause       string `json:"cause"`
		Explanation string `json:"explanation"`
	} `json:"error"`
}

// CreateSession opens a hosted checkout session for an order. The
// returned checkout URL points at the gateway's embeddable checkout
// script.
func (c *Client) CreateSession(ctx context.Context, orderID, description string, amount float64) (CheckoutSession, error) {
	var session CheckoutSession

	if description == "" {
		description = "Service Payment"
	}

	body := sessionRequest{
		APIOperation: "INITIATE_CHECKOUT",
		Interaction: interaction{
			Merchant:  merchantName{Name: "National Identity Services"},
			Operation: "PURCHASE",
			DisplayControl: displayControl{
				BillingAddress: "HIDE",
				CustomerEmail:  "HIDE",
				Shipping:       "HIDE",
			},
			ReturnURL: c.config.CallbackURL,
		},
		Order: order{
			ID:          orderID,
			Currency:    "LKR",
			Description: description,
			Amount:      strconv.FormatFloat(amount, 'f', 2, 64),
		},
	}

	url := fmt.Sprintf("%s/api/rest/version/%s/merchant/%s/session",
		c.config.BaseURL, c.config.APIVersion, c.config.MerchantID)

	result, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return session, err
	}

	if result.Result != "SUCCESS" {
		explanation := result.Error.Explanation
		if explanation == "" {
			explanation = "no explanation given"
		}
		return session, fmt.Errorf("%w: %s", ErrSessionRejected, explanation)
	}

	return CheckoutSession{
		SessionID:   result.Session.ID,
		OrderID:     orderID,
		CheckoutURL: c.config.BaseURL + "/static/checkout/checkout.min.js",
	}, nil
}

// VerifyOrder fetches the gateway's view of an order, typically after the
// checkout callback fires.
func (c *Client) VerifyOrder(ctx context.Context, orderID string) (OrderResult, error) {
	var orderResult OrderResult

	url := fmt.Sprintf("%s/api/rest/version/%s/merchant/%s/order/%s",
		c.config.BaseURL, c.config.APIVersion, c.config.MerchantID, orderID)

	result, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return orderResult, err
	}

	if result.Result != "SUCCESS" {
		return orderResult, ErrVerificationRejected
	}

	amount, err := strconv.ParseFloat(result.Order.Amount, 64)
	if err != nil {
		return orderResult, fmt.Errorf("paydpi: unparseable order amount %q: %w", result.Order.Amount, err)
	}

	return OrderResult{
		OrderID:  result.Order.ID,
		Status:   result.Order.Status,
		Amount:   amount,
		Currency: result.Order.Currency,
	}, nil
}

func (c *Client) do(ctx context.Context, method, url string, body any) (gatewayResponse, error) {
	var result gatewayResponse

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return result, fmt.Errorf("paydpi: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return result, fmt.Errorf("paydpi: build request: %w", err)
	}

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.SetBasicAuth(c.config.APIUsername, c.config.APIPassword)

	response, err := c.http.Do(request)
	if err != nil {
		return result, fmt.Errorf("paydpi: gateway unreachable: %w", err)
	}
	defer response.Body.Close()

	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("paydpi: decode response: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("gateway call",
			slog.String("method", method),
			slog.Int("status", response.StatusCode),
			slog.String("result", result.Result))
	}

	return result, nil
}
