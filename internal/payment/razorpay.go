// Package payment は決済ゲートウェイとの注文作成と決済署名の検証を提供する。
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/paygate/internal/model"
)

const (
	// DefaultRazorpayAPIURL はRazorpay Orders APIのベースURL。
	DefaultRazorpayAPIURL = "https://api.razorpay.com/v1"
	defaultGatewayTimeout = 10 * time.Second
	// maxResponseBytes はゲートウェイレスポンスの読み取り上限。
	maxResponseBytes = 1 << 20
)

// OrderParams はゲートウェイに送信する注文作成パラメータ。
type OrderParams struct {
	Amount         int64  `json:"amount"` // 最小通貨単位
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

// Gateway は決済ゲートウェイのインターフェース。
type Gateway interface {
	CreateOrder(ctx context.Context, params OrderParams) (*model.PaymentOrder, error)
}

// RazorpayConfig はRazorpayクライアントの設定。
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string // テスト用に差し替え可能
	Timeout   time.Duration
}

// RazorpayClient はRazorpay Orders APIのクライアント。
// 呼び出しは1回限りで、失敗しても自動リトライしない。
type RazorpayClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     RazorpayConfig
}

// NewRazorpayClient はRazorpayClientを生成する。
func NewRazorpayClient(config RazorpayConfig, logger *slog.Logger) *RazorpayClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultRazorpayAPIURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaultGatewayTimeout
	}
	return &RazorpayClient{
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		config:     config,
	}
}

// razorpayErrorResponse はRazorpayのエラーレスポンス。
type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder はPOST {base}/ordersで注文を作成する。
// 失敗時は*model.GatewayErrorを返す。
func (c *RazorpayClient) CreateOrder(ctx context.Context, params OrderParams) (*model.PaymentOrder, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}
	req.SetBasicAuth(c.config.KeyID, c.config.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("payment gateway request failed",
			slog.String("error", err.Error()),
		)
		return nil, &model.GatewayError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &model.GatewayError{
			StatusCode: resp.StatusCode,
			Message:    "failed to read gateway response",
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwErr := &model.GatewayError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
		var errResp razorpayErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Description != "" {
			gwErr.Code = errResp.Error.Code
			gwErr.Message = errResp.Error.Description
		}
		c.logger.Error("payment gateway returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("gateway_code", gwErr.Code),
		)
		return nil, gwErr
	}

	order := &model.PaymentOrder{}
	if err := json.Unmarshal(body, order); err != nil {
		return nil, &model.GatewayError{
			StatusCode: resp.StatusCode,
			Message:    "malformed gateway response",
			Err:        err,
		}
	}
	order.Raw = json.RawMessage(body)

	return order, nil
}

// compile-time interface check
var _ Gateway = (*RazorpayClient)(nil)
