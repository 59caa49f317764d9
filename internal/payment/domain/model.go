package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Terminal() bool {
	return s != PaymentStatusPending
}

const MethodGateway = "gateway"

// Payment is one charge attempt identified by its gateway reference.
type Payment struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	OwnerID        snowflake.ID   `json:"owner_id" gorm:"not null;index"`
	SubscriptionID *snowflake.ID  `json:"subscription_id,omitempty"`
	PackageID      snowflake.ID   `json:"package_id" gorm:"not null"`
	Reference      string         `json:"reference" gorm:"type:text;not null;uniqueIndex"`
	Method         string         `json:"method" gorm:"type:text;not null"`
	Amount         int64          `json:"amount" gorm:"not null"`
	Currency       string         `json:"currency" gorm:"type:text;not null"`
	Status         PaymentStatus  `json:"status" gorm:"type:text;not null"`
	Gateway        datatypes.JSON `json:"gateway,omitempty" gorm:"type:jsonb"`
	PaidAt         *time.Time     `json:"paid_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// GatewayData is the blob stored alongside a payment. The initiation fields
// drive settlement; the rest are recorded from the callback.
type GatewayData struct {
	Kind                string                  `json:"kind"`
	PriorSubscriptionID *snowflake.ID           `json:"prior_subscription_id,omitempty"`
	PackageSnapshot     *catalogdomain.Snapshot `json:"package_snapshot,omitempty"`
	ClientIP            string                  `json:"client_ip,omitempty"`
	Locale              string                  `json:"locale,omitempty"`

	ResponseCode      string `json:"response_code,omitempty"`
	TransactionStatus string `json:"transaction_status,omitempty"`
	TransactionNo     string `json:"transaction_no,omitempty"`
	BankCode          string `json:"bank_code,omitempty"`
	PayDate           string `json:"pay_date,omitempty"`
}

func (p *Payment) GatewayData() (GatewayData, error) {
	var data GatewayData
	if len(p.Gateway) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(p.Gateway, &data); err != nil {
		return data, err
	}
	return data, nil
}

func EncodeGatewayData(data GatewayData) (datatypes.JSON, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Merge overlays the callback fields from patch onto d.
func (d GatewayData) Merge(patch GatewayData) GatewayData {
	if patch.ResponseCode != "" {
		d.ResponseCode = patch.ResponseCode
	}
	if patch.TransactionStatus != "" {
		d.TransactionStatus = patch.TransactionStatus
	}
	if patch.TransactionNo != "" {
		d.TransactionNo = patch.TransactionNo
	}
	if patch.BankCode != "" {
		d.BankCode = patch.BankCode
	}
	if patch.PayDate != "" {
		d.PayDate = patch.PayDate
	}
	return d
}
