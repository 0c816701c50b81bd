// Package khalti is a client for the Khalti ePayment API (initiate and lookup).
package khalti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/pkg/retry"
)

type Config struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	retries   *retry.RetryManager
}

func NewClient(cfg Config) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "khalti",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Gateway rejections are answers, not outages.
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < 500)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: cfg.Timeout},
		breaker:   breaker,
		retries:   retry.NewRetryManager(cfg.MaxRetries, 200*time.Millisecond),
	}
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("khalti responded %d: %s", e.StatusCode, e.Body)
}

type customerInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type initiateRequest struct {
	ReturnURL         string        `json:"return_url"`
	WebsiteURL        string        `json:"website_url"`
	Amount            int64         `json:"amount"`
	PurchaseOrderID   string        `json:"purchase_order_id"`
	PurchaseOrderName string        `json:"purchase_order_name"`
	CustomerInfo      *customerInfo `json:"customer_info,omitempty"`
}

type initiateResponse struct {
	Pidx       string    `json:"pidx"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	ExpiresIn  int       `json:"expires_in"`
}

type lookupResponse struct {
	Pidx          string  `json:"pidx"`
	TotalAmount   int64   `json:"total_amount"`
	Status        string  `json:"status"`
	TransactionID *string `json:"transaction_id"`
	Fee           int64   `json:"fee"`
	Refunded      bool    `json:"refunded"`
}

// CreateIntent starts a charge. It is not retried because a retry could open
// a second intent for the same order.
func (c *Client) CreateIntent(ctx context.Context, req entity.IntentRequest) (*entity.GatewayIntent, error) {
	payload := initiateRequest{
		ReturnURL:         req.ReturnURL,
		WebsiteURL:        req.WebsiteURL,
		Amount:            req.Amount,
		PurchaseOrderID:   req.OrderID,
		PurchaseOrderName: req.OrderName,
	}
	if req.Customer.Name != "" {
		payload.CustomerInfo = &customerInfo{Name: req.Customer.Name, Email: req.Customer.Email, Phone: req.Customer.Phone}
	}

	body, err := c.call(ctx, "/epayment/initiate/", payload)
	if err != nil {
		return nil, err
	}

	var resp initiateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed initiate response: %v", entity.ErrGateway, err)
	}
	if resp.Pidx == "" || resp.PaymentURL == "" {
		return nil, fmt.Errorf("%w: initiate response without pidx", entity.ErrGateway)
	}

	return &entity.GatewayIntent{
		Pidx:       resp.Pidx,
		PaymentURL: resp.PaymentURL,
		ExpiresAt:  resp.ExpiresAt,
		BookingID:  req.OrderID,
		Amount:     req.Amount,
	}, nil
}

// Lookup asks the gateway for the authoritative status of pidx.
func (c *Client) Lookup(ctx context.Context, pidx string) (*entity.GatewayLookup, error) {
	var body []byte
	err := c.retries.Do(ctx, func(ctx context.Context) error {
		var callErr error
		body, callErr = c.call(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx})
		var apiErr *APIError
		if errors.As(callErr, &apiErr) && apiErr.StatusCode < 500 {
			return retry.Permanent(callErr)
		}
		if errors.Is(callErr, gobreaker.ErrOpenState) {
			return retry.Permanent(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var resp lookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed lookup response: %v", entity.ErrGateway, err)
	}

	result := &entity.GatewayLookup{
		Pidx:        resp.Pidx,
		Status:      entity.GatewayStatus(resp.Status),
		TotalAmount: resp.TotalAmount,
		Raw:         json.RawMessage(body),
	}
	if resp.TransactionID != nil {
		result.TransactionID = *resp.TransactionID
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Key "+c.secretKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("%w: gateway temporarily unavailable: %w", entity.ErrGateway, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", entity.ErrGateway, path, err)
	}
	return result.([]byte), nil
}
