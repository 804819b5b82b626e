package model

import (
	"errors"
	"fmt"
)

// ドメインエラー。HTTP境界でerrors.Isにより分類する。
var (
	// ErrStoreUnavailable はセッションストアに到達できないことを示す。
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrProviderExchangeFailed はIdPとの認可コード交換に失敗したことを示す。
	ErrProviderExchangeFailed = errors.New("identity provider exchange failed")
	// ErrInvalidAmount は金額が正の数でないことを示す。
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidCurrency は通貨コードがISO 4217として解釈できないことを示す。
	ErrInvalidCurrency = errors.New("invalid currency")
	// ErrMissingParameters は検証に必要なパラメータが欠けていることを示す。
	ErrMissingParameters = errors.New("missing required parameters")
	// ErrSignatureMismatch は決済署名が一致しないことを示す。
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrGatewayUnavailable は決済ゲートウェイ呼び出しの失敗を示す。
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// GatewayError は決済ゲートウェイが返したエラーを表す。
// Messageはゲートウェイのメッセージで、本番環境以外でのみクライアントに返す。
type GatewayError struct {
	StatusCode int    // HTTPステータス。通信エラーの場合は0
	Code       string // ゲートウェイのエラーコード（例: BAD_REQUEST_ERROR）
	Message    string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("payment gateway request failed: %s", e.Message)
	}
	return fmt.Sprintf("payment gateway returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap はErrGatewayUnavailableとの比較と、元のエラーの取り出しを可能にする。
func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGatewayUnavailable, e.Err}
	}
	return []error{ErrGatewayUnavailable}
}

// APIError はJSONエラーレスポンスの本文を表す。
// 決済APIは常に{success:false, error}の形で失敗を返す。
type APIError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// クライアントに返すエラーメッセージ。
const (
	MsgInvalidAmount     = "Invalid amount"
	MsgInvalidCurrency   = "Invalid currency"
	MsgInvalidBody       = "Invalid request body"
	MsgMissingParameters = "Missing required parameters"
	MsgInvalidSignature  = "Invalid payment signature"
	MsgOrderFailed       = "Failed to create order"
	MsgVerifyFailed      = "Payment verification failed"
	MsgInternal          = "Internal server error"
	MsgRouteNotFound     = "Route not found"
	MsgMethodNotAllowed  = "Method not allowed"
	MsgTooManyRequests   = "Too many requests"
	MsgLogoutFailed      = "Logout failed"
)

// NewAPIError は失敗レスポンス本文を生成する。
func NewAPIError(message string) APIError {
	return APIError{Success: false, Error: message}
}
