package model

import "encoding/json"

// PaymentOrder は決済ゲートウェイが発行した注文を表す。
// ゲートウェイ側が正本であり、ローカルには保存しない。
type PaymentOrder struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"` // 最小通貨単位（INRならパイサ）
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	CreatedAt  int64  `json:"created_at"`

	// Raw はゲートウェイのレスポンスそのもの。クライアントにはこれをそのまま返す。
	Raw json.RawMessage `json:"-"`
}

// MarshalJSON はゲートウェイのレスポンスが保持されていればそれをそのまま出力する。
func (o PaymentOrder) MarshalJSON() ([]byte, error) {
	if len(o.Raw) > 0 {
		return o.Raw, nil
	}
	type plain PaymentOrder
	return json.Marshal(plain(o))
}

// PaymentVerification はチェックアウト完了後にクライアントが送信する検証情報。
// 1回の検証判定にのみ使用し、保存しない。
type PaymentVerification struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}
