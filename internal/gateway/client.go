package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

var (
	// ErrNotFound: the gateway has no transaction for the merchant
	// reference. Terminal; never retried.
	ErrNotFound = errors.New("gateway: transaction not found")
	// ErrRateLimited: the gateway rejected the call for pacing. Transient.
	ErrRateLimited = errors.New("gateway: rate limited")
	// ErrTransport covers network failures and gateway 5xx. Transient.
	ErrTransport = errors.New("gateway: transport error")
)

// Client queries the payment gateway's transaction-status API. Every call
// goes through the limiter first, so the gateway's rate ceiling holds no
// matter how many goroutines verify concurrently.
type Client struct {
	httpClient *http.Client
	limiter    Limiter
	baseURL    string
	merchantID string
	saltKey    string
	saltIndex  int
}

func NewClient(baseURL, merchantID, saltKey string, saltIndex int, limiter Limiter) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
		baseURL:    baseURL,
		merchantID: merchantID,
		saltKey:    saltKey,
		saltIndex:  saltIndex,
	}
}

type statusResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TransactionID         string `json:"transactionId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		State                 string `json:"state"`
		Amount                int64  `json:"amount"`
		PaymentInstrument     struct {
			Type      string `json:"type"`
			Utr       string `json:"utr"`
			PayerName string `json:"payerName"`
			PayerVPA  string `json:"payerVpa"`
		} `json:"paymentInstrument"`
	} `json:"data"`
}

func (c *Client) Status(ctx context.Context, merchantRef string) (*models.GatewayTransaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/pg/v1/status/%s/%s", c.merchantID, merchantRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", c.checksum(path))
	req.Header.Set("X-MERCHANT-ID", c.merchantID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrTransport, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
	}

	if sr.Code == "PAYMENT_NOT_FOUND" || sr.Code == "TRANSACTION_NOT_FOUND" {
		return nil, ErrNotFound
	}
	if !sr.Success && sr.Data.State == "" {
		return nil, fmt.Errorf("%w: gateway error %s: %s", ErrTransport, sr.Code, sr.Message)
	}

	txn := &models.GatewayTransaction{
		TransactionID:         sr.Data.TransactionID,
		MerchantTransactionID: sr.Data.MerchantTransactionID,
		State:                 models.GatewayState(sr.Data.State),
		Amount:                sr.Data.Amount,
		PayerName:             sr.Data.PaymentInstrument.PayerName,
		PayerVPA:              sr.Data.PaymentInstrument.PayerVPA,
		PaymentInstrument:     sr.Data.PaymentInstrument.Type,
	}

	telemetry.Logger.Debug("Gateway status fetched",
		zap.String("merchant_ref", merchantRef),
		zap.String("state", string(txn.State)),
		zap.Int64("amount", txn.Amount),
	)

	return txn, nil
}

// checksum builds the X-VERIFY header the gateway requires:
// sha256(path + saltKey) hex, "###", salt index.
func (c *Client) checksum(path string) string {
	sum := sha256.Sum256([]byte(path + c.saltKey))
	return hex.EncodeToString(sum[:]) + "###" + strconv.Itoa(c.saltIndex)
}
