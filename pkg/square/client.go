package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/cardhold-backend/internal/processor"
	"github.com/angelmondragon/cardhold-backend/pkg/config"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationIDRequired  = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client drives card holds through Square delayed-capture payments, with
// centralized auth, logging, idempotency, and error mapping.
type Client struct {
	sdk         *sqclient.Client
	accessToken string
	environment string
	locationID  string
	baseURL     string
	logger      *logger.Logger
}

var _ processor.Processor = (*Client)(nil)

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationIDRequired
	}

	baseURL := baseURLs[env]
	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(accessToken),
	)

	c := &Client{
		sdk:         sdk,
		accessToken: accessToken,
		environment: env,
		locationID:  locationID,
		baseURL:     baseURL,
		logger:      logg,
	}

	logg.Info(ctx, "square client initialized")
	return c, nil
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// NewIdempotencyKey returns a unique key for Square operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "ch"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// Authorize places a delayed-capture payment so the funds are held but not
// moved until Capture or Cancel.
func (c *Client) Authorize(ctx context.Context, params processor.AuthorizeParams) (*processor.Authorization, error) {
	req := authorizeRequest(params, c.locationID, c.ensureIdempotencyKey("deposit.authorize", params.IdempotencyKey))
	c.log(ctx, "request", "authorize", map[string]any{
		"deposit_id":  params.DepositID,
		"customer_id": params.CustomerID,
		"amount":      params.AmountCents,
		"currency":    params.Currency,
	})

	resp, err := c.sdk.Payments.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "authorize", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "authorize")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "authorize", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return &processor.Authorization{
		IntentID:     stringValue(payment.GetID()),
		AmountCents:  params.AmountCents,
		AuthorizedAt: time.Now().UTC(),
	}, nil
}

// Reauthorize places a fresh hold and cancels the expiring one. A failed
// cancel of the old intent is logged only; Square expires stale
// authorizations on its own.
func (c *Client) Reauthorize(ctx context.Context, params processor.ReauthorizeParams) (*processor.Authorization, error) {
	auth, err := c.Authorize(ctx, processor.AuthorizeParams{
		DepositID:       params.DepositID,
		CustomerID:      params.CustomerID,
		PaymentMethodID: params.PaymentMethodID,
		AmountCents:     params.AmountCents,
		Currency:        params.Currency,
		IdempotencyKey:  c.NewIdempotencyKey("deposit.reauthorize"),
	})
	if err != nil {
		return nil, err
	}

	if prev := strings.TrimSpace(params.PreviousIntentID); prev != "" {
		if cancelErr := c.Cancel(ctx, prev); cancelErr != nil {
			c.log(ctx, "error", "reauthorize", map[string]any{
				"error":      cancelErr.Error(),
				"payment_id": prev,
			})
		}
	}
	return auth, nil
}

// Capture completes a held payment. Partial captures shrink the payment to
// the capture amount first so Square returns the remainder to the customer.
func (c *Client) Capture(ctx context.Context, params processor.CaptureParams) (*processor.CaptureResult, error) {
	c.log(ctx, "request", "capture", map[string]any{
		"payment_id": params.IntentID,
		"amount":     params.AmountCents,
		"partial":    params.Partial,
	})

	if params.Partial {
		updateReq := &sq.UpdatePaymentRequest{
			PaymentID:      params.IntentID,
			IdempotencyKey: c.NewIdempotencyKey("deposit.capture.update"),
			Payment: &sq.Payment{
				AmountMoney: moneyPtr(params.AmountCents, params.Currency),
			},
		}
		if _, err := c.sdk.Payments.Update(ctx, updateReq); err != nil {
			c.log(ctx, "error", "capture", map[string]any{"error": err.Error()})
			return nil, c.mapSquareError(err, "capture")
		}
	}

	resp, err := c.sdk.Payments.Complete(ctx, &sq.CompletePaymentRequest{PaymentID: params.IntentID})
	if err != nil {
		c.log(ctx, "error", "capture", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "capture")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "capture", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return &processor.CaptureResult{
		Reference:   stringValue(payment.GetID()),
		AmountCents: params.AmountCents,
		CapturedAt:  time.Now().UTC(),
	}, nil
}

// Cancel voids a held payment, releasing the funds back to the customer.
func (c *Client) Cancel(ctx context.Context, intentID string) error {
	c.log(ctx, "request", "cancel", map[string]any{"payment_id": intentID})

	resp, err := c.sdk.Payments.Cancel(ctx, &sq.CancelPaymentsRequest{PaymentID: intentID})
	if err != nil {
		c.log(ctx, "error", "cancel", map[string]any{"error": err.Error()})
		return c.mapSquareError(err, "cancel")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "cancel", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return nil
}

// Refund returns captured funds to the customer.
func (c *Client) Refund(ctx context.Context, params processor.RefundParams) (*processor.RefundResult, error) {
	req := refundRequest(params, c.NewIdempotencyKey("deposit.refund"))
	c.log(ctx, "request", "refund", map[string]any{
		"payment_id": params.IntentID,
		"amount":     params.AmountCents,
	})

	resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
	if err != nil {
		c.log(ctx, "error", "refund", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "refund")
	}

	refund := resp.GetRefund()
	c.log(ctx, "response", "refund", map[string]any{
		"refund_id": refund.GetID(),
		"status":    stringValue(refund.GetStatus()),
	})
	return refundResult(refund, params.AmountCents), nil
}

// refundResult maps Square's refund response onto the processor result. The
// refund id is a plain string on PaymentRefund, unlike the pointer fields on
// Payment.
func refundResult(refund *sq.PaymentRefund, amountCents int64) *processor.RefundResult {
	return &processor.RefundResult{
		RefundID:    refund.GetID(),
		AmountCents: amountCents,
		RefundedAt:  time.Now().UTC(),
	}
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("square %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

// mapSquareError translates SDK failures into the structured processor error
// the deposit controller keys transitions off.
func (c *Client) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return processor.WrapError(processor.CodeUnavailable, err,
			fmt.Sprintf("square %s unreachable", op), true)
	}

	if apiErr.StatusCode >= 500 || apiErr.StatusCode == 429 {
		return processor.WrapError(processor.CodeUnavailable, err,
			fmt.Sprintf("square %s failed upstream", op), true)
	}

	for _, sqErr := range c.extractSquareErrors(apiErr) {
		if sqErr == nil {
			continue
		}
		if sqErr.Code == sq.ErrorCodeCardDeclinedVerificationRequired {
			perr := processor.WrapError(processor.CodeActionRequired, err,
				fmt.Sprintf("square %s requires cardholder verification", op), false)
			perr.ActionRequired = &processor.ActionRequired{
				Type:    "verification",
				Details: stringValue(sqErr.Detail),
			}
			return perr
		}
		if sqErr.Category == sq.ErrorCategoryPaymentMethodError ||
			sqErr.Category == sq.ErrorCategoryRefundError {
			return processor.WrapError(processor.CodeDeclined, err,
				fmt.Sprintf("square %s declined: %s", op, sqErr.Code), false)
		}
	}

	return processor.WrapError(processor.CodeInvalidRequest, err,
		fmt.Sprintf("square %s rejected", op), false)
}

func (c *Client) extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
