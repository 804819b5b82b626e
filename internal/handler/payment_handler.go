package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/paygate/internal/middleware"
	"github.com/hitoshi/paygate/internal/model"
	"github.com/hitoshi/paygate/internal/payment"
)

// maxPaymentBodyBytes は決済APIのリクエスト本文の上限。
const maxPaymentBodyBytes = 16 << 10

// PaymentBrokerInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentBrokerInterface interface {
	KeyID() string
	CreateOrder(ctx context.Context, req payment.OrderRequest) (*model.PaymentOrder, error)
	VerifyPayment(v model.PaymentVerification) error
}

// PaymentHandler は決済関連のHTTPハンドラー。
type PaymentHandler struct {
	broker PaymentBrokerInterface
	// exposeGatewayErrors がtrueの場合、ゲートウェイのエラーメッセージをクライアントに返す。
	// 本番環境ではfalseにする。
	exposeGatewayErrors bool
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(broker PaymentBrokerInterface, exposeGatewayErrors bool) *PaymentHandler {
	return &PaymentHandler{
		broker:              broker,
		exposeGatewayErrors: exposeGatewayErrors,
	}
}

// keyResponse は公開キーIDのレスポンス。
type keyResponse struct {
	Key string `json:"key"`
}

// orderResponse は注文作成成功時のレスポンス。
type orderResponse struct {
	Success bool                `json:"success"`
	Order   *model.PaymentOrder `json:"order"`
}

// verifyResponse は署名検証成功時のレスポンス。
type verifyResponse struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
}

// GetKey はチェックアウトで使用する公開キーIDを返す。
// GET /api/payment/key
func (h *PaymentHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, keyResponse{Key: h.broker.KeyID()})
}

// CreateOrder は決済ゲートウェイに注文を作成する。
// POST /api/payment/order
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req payment.OrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		// 数値以外のamountはInvalid amountとして扱う
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "amount" {
			middleware.WriteJSONError(w, http.StatusBadRequest, model.MsgInvalidAmount)
			return
		}
		middleware.WriteJSONError(w, http.StatusBadRequest, model.MsgInvalidBody)
		return
	}

	order, err := h.broker.CreateOrder(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidAmount):
			middleware.WriteJSONError(w, http.StatusBadRequest, model.MsgInvalidAmount)
		case errors.Is(err, model.ErrInvalidCurrency):
			middleware.WriteJSONError(w, http.StatusBadRequest, model.MsgInvalidCurrency)
		default:
			slog.Error("failed to create payment order", slog.String("error", err.Error()))
			middleware.WriteJSONError(w, http.StatusInternalServerError, h.orderFailureMessage(err))
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, orderResponse{Success: true, Order: order})
}

// VerifyPayment はチェックアウト完了後の決済署名を検証する。
// POST /api/payment/verify
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var v model.PaymentVerification
	if err := decodeJSONBody(w, r, &v); err != nil {
		middleware.WriteJSONError(w, http.StatusBadRequest, model.MsgInvalidBody)
		return
	}

	if err := h.broker.VerifyPayment(v); err != nil {
		switch {
		case errors.Is(err, model.ErrMissingParameters):
			middleware.WriteJSONError(w, http.StatusBadRequest, model.MsgMissingParameters)
		case errors.Is(err, model.ErrSignatureMismatch):
			middleware.WriteJSONError(w, http.StatusBadRequest, model.MsgInvalidSignature)
		default:
			slog.Error("failed to verify payment", slog.String("error", err.Error()))
			middleware.WriteJSONError(w, http.StatusInternalServerError, model.MsgVerifyFailed)
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, verifyResponse{
		Success:   true,
		PaymentID: v.PaymentID,
		OrderID:   v.OrderID,
	})
}

// orderFailureMessage はゲートウェイエラー時にクライアントへ返すメッセージを決める。
func (h *PaymentHandler) orderFailureMessage(err error) string {
	var gwErr *model.GatewayError
	if h.exposeGatewayErrors && errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return model.MsgOrderFailed
}

// decodeJSONBody はリクエスト本文をJSONとしてデコードする。
// 空の本文は空オブジェクトとして扱い、必須項目の検証はブローカーに委ねる。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxPaymentBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
