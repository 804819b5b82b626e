package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/paygate/internal/metrics"
	"github.com/hitoshi/paygate/internal/model"
	"golang.org/x/text/currency"
)

const (
	// DefaultCurrency は通貨未指定時に使用する通貨。
	DefaultCurrency = "INR"
	receiptPrefix   = "rcpt_"
	// maxMinorUnits はfloat64で整数として正確に扱える範囲に収めるための上限。
	maxMinorUnits = 1e15
)

// OrderRequest はクライアントから受け取る注文作成リクエスト。
// Amountは主通貨単位（INRならルピー）。
type OrderRequest struct {
	Amount   *float64 `json:"amount"`
	Currency string   `json:"currency,omitempty"`
	Receipt  string   `json:"receipt,omitempty"`
}

// Broker は注文作成と決済署名の検証を仲介する。
// 状態を持たず、複数のリクエストから並行して利用できる。
type Broker struct {
	gateway   Gateway
	keyID     string
	keySecret []byte
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewBroker はBrokerを生成する。collectorはnilでもよい。
func NewBroker(gateway Gateway, keyID, keySecret string, collector metrics.MetricsCollector) *Broker {
	return &Broker{
		gateway:   gateway,
		keyID:     keyID,
		keySecret: []byte(keySecret),
		metrics:   collector,
		now:       time.Now,
	}
}

// KeyID はチェックアウトで使用する公開キーIDを返す。シークレットは返さない。
func (b *Broker) KeyID() string {
	return b.keyID
}

// CreateOrder は金額を検証し、ゲートウェイに自動キャプチャの注文を作成する。
// 金額が不正な場合はゲートウェイを呼び出さずにmodel.ErrInvalidAmountを返す。
func (b *Broker) CreateOrder(ctx context.Context, req OrderRequest) (*model.PaymentOrder, error) {
	minor, err := toMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}

	cur, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	receipt := strings.TrimSpace(req.Receipt)
	if receipt == "" {
		receipt, err = newReceipt()
		if err != nil {
			return nil, fmt.Errorf("failed to generate receipt: %w", err)
		}
	}

	start := b.now()
	order, err := b.gateway.CreateOrder(ctx, OrderParams{
		Amount:         minor,
		Currency:       cur,
		Receipt:        receipt,
		PaymentCapture: 1,
	})
	if b.metrics != nil {
		b.metrics.RecordGatewayLatency(b.now().Sub(start))
	}
	if err != nil {
		b.recordOrder(metrics.ResultFailure)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	b.recordOrder(metrics.ResultSuccess)

	slog.Info("payment order created",
		slog.String("order_id", order.ID),
		slog.Int64("amount", minor),
		slog.String("currency", cur),
	)
	return order, nil
}

// VerifyPayment はゲートウェイが発行した決済署名を検証する。
// 署名はHMAC-SHA256(key_secret, orderId + "|" + paymentId)の16進表現。
// 比較は定数時間で行い、期待値はエラーに含めない。
func (b *Broker) VerifyPayment(v model.PaymentVerification) error {
	if v.OrderID == "" || v.PaymentID == "" || v.Signature == "" {
		b.recordVerification(metrics.ResultInvalid)
		return model.ErrMissingParameters
	}

	expected := Sign(b.keySecret, v.OrderID, v.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(v.Signature)) {
		b.recordVerification(metrics.ResultFailure)
		slog.Warn("payment signature mismatch",
			slog.String("order_id", v.OrderID),
			slog.String("payment_id", v.PaymentID),
		)
		return model.ErrSignatureMismatch
	}

	b.recordVerification(metrics.ResultSuccess)
	slog.Info("payment verified",
		slog.String("order_id", v.OrderID),
		slog.String("payment_id", v.PaymentID),
	)
	return nil
}

// Sign はorderIDとpaymentIDに対する決済署名を計算する。
func Sign(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Broker) recordOrder(result string) {
	if b.metrics != nil {
		b.metrics.RecordOrder(result)
	}
}

func (b *Broker) recordVerification(result string) {
	if b.metrics != nil {
		b.metrics.RecordVerification(result)
	}
}

// toMinorUnits は主通貨単位の金額を最小通貨単位に変換する。
// 未指定、非有限、0以下、または丸めて0になる金額はmodel.ErrInvalidAmountとする。
func toMinorUnits(amount *float64) (int64, error) {
	if amount == nil {
		return 0, model.ErrInvalidAmount
	}
	a := *amount
	if math.IsNaN(a) || math.IsInf(a, 0) || a <= 0 {
		return 0, model.ErrInvalidAmount
	}
	minor := math.Round(a * 100)
	if minor < 1 || minor > maxMinorUnits {
		return 0, model.ErrInvalidAmount
	}
	return int64(minor), nil
}

// normalizeCurrency は通貨コードを大文字に正規化し、ISO 4217として検証する。
func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

// newReceipt は時刻順に並ぶ一意なレシート番号を生成する。
// ゲートウェイのレシート長上限（40文字）に収めるためハイフンを除く。
func newReceipt() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return receiptPrefix + strings.ReplaceAll(id.String(), "-", ""), nil
}
