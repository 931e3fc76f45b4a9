package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	paypalStatusCompleted = "COMPLETED"
	paypalStatusApproved  = "APPROVED"
)

// PayPalGateway оплата через PayPal Orders API. Заказ создаётся с intent CAPTURE,
// покупатель подтверждает его по ссылке, деньги списываются в Capture
type PayPalGateway struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewPayPalGateway(baseURL, clientID, clientSecret string, logger *zap.Logger) *PayPalGateway {
	return &PayPalGateway{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalCapture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o *paypalOrder) link(rels ...string) string {
	for _, rel := range rels {
		for _, l := range o.Links {
			if l.Rel == rel {
				return l.Href
			}
		}
	}
	return ""
}

func (o *paypalOrder) captureID() string {
	for _, pu := range o.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			if c.Status == paypalStatusCompleted {
				return c.ID
			}
		}
	}
	return ""
}

// Charge создаёт заказ. Платёж остаётся pending до подтверждения покупателем
func (g *PayPalGateway) Charge(ctx context.Context, charge model.GatewayCharge) (*model.GatewayResult, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": charge.Reference,
				"description":  charge.Description,
				"amount": paypalAmount{
					CurrencyCode: charge.Currency,
					Value:        charge.Amount.StringFixed(2),
				},
			},
		},
	}

	var order paypalOrder
	if err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", charge.Reference, payload, &order); err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}

	g.logger.Info("PayPal order created",
		zap.String("reference", charge.Reference),
		zap.String("order_id", order.ID),
		zap.String("status", order.Status))

	return &model.GatewayResult{
		Success:       true,
		Pending:       true,
		TransactionID: order.ID,
		Message:       "approve the payment on PayPal",
		ActionURL:     order.link("payer-action", "approve"),
	}, nil
}

// Capture списывает деньги по одобренному заказу
func (g *PayPalGateway) Capture(ctx context.Context, transactionID string) (*model.GatewayResult, error) {
	var order paypalOrder
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", transactionID)
	if err := g.do(ctx, http.MethodPost, path, "capture-"+transactionID, nil, &order); err != nil {
		return nil, fmt.Errorf("capture paypal order: %w", err)
	}

	g.logger.Info("PayPal order captured",
		zap.String("order_id", order.ID),
		zap.String("status", order.Status))

	if order.Status != paypalStatusCompleted {
		return &model.GatewayResult{
			Success:       false,
			TransactionID: order.ID,
			Message:       fmt.Sprintf("paypal order is %s", strings.ToLower(order.Status)),
		}, nil
	}

	return &model.GatewayResult{
		Success:       true,
		TransactionID: order.ID,
		Message:       "captured",
	}, nil
}

// Refund возвращает списанные по заказу деньги. Незахваченный заказ возвращать не нужно
func (g *PayPalGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) error {
	var order paypalOrder
	if err := g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+transactionID, "", nil, &order); err != nil {
		return fmt.Errorf("get paypal order: %w", err)
	}

	captureID := order.captureID()
	if captureID == "" {
		g.logger.Info("PayPal order was not captured, nothing to refund",
			zap.String("order_id", transactionID),
			zap.String("status", order.Status))
		return nil
	}

	var payload any
	if amount.IsPositive() {
		payload = map[string]any{
			"amount": paypalAmount{CurrencyCode: currency, Value: amount.StringFixed(2)},
		}
	}

	path := fmt.Sprintf("/v2/payments/captures/%s/refund", captureID)
	if err := g.do(ctx, http.MethodPost, path, "refund-"+captureID+"-"+amount.StringFixed(2), payload, nil); err != nil {
		return fmt.Errorf("refund paypal capture: %w", err)
	}

	g.logger.Info("PayPal capture refunded",
		zap.String("order_id", transactionID),
		zap.String("capture_id", captureID),
		zap.String("amount", amount.StringFixed(2)))

	return nil
}

func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get access token, status: %s", resp.Status)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode access token: %w", err)
	}
	return token.AccessToken, nil
}

func (g *PayPalGateway) do(ctx context.Context, method, path, requestID string, payload, dest any) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("paypal responded %s: %s", resp.Status, string(respBody))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
