package model

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type Receipt struct {
	ID             int64           `json:"id"`
	Number         string          `json:"receipt_number"`
	ConsultationID string          `json:"consultation_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	IssuedBy       string          `json:"issued_by"`
	Content        json.RawMessage `json:"receipt_content"`
	IssuedAt       time.Time       `json:"issued_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ReceiptContent is the printable snapshot stored with a receipt.
type ReceiptContent struct {
	ReceiptNumber    string           `json:"receipt_number"`
	ConsultationID   string           `json:"consultation_id"`
	PatientID        string           `json:"patient_id"`
	DoctorID         string           `json:"doctor_id"`
	Clinic           string           `json:"clinic"`
	ConsultationDate Date             `json:"consultation_date"`
	ConsultationTime TimeOfDay        `json:"consultation_time"`
	ConsultationType ConsultationType `json:"consultation_type"`
	Amount           string           `json:"amount"`
	PaymentMethod    string           `json:"payment_method"`
	PaymentStatus    PaymentStatus    `json:"payment_status"`
	IssuedBy         string           `json:"issued_by"`
	IssuedAt         time.Time        `json:"issued_at"`
	ChiefComplaint   string           `json:"chief_complaint"`
}

// FormatAmount renders amount with two decimals behind symbol, e.g. ₹100.00.
func FormatAmount(symbol string, amount decimal.Decimal) string {
	return symbol + amount.StringFixed(2)
}

// NewReceipt snapshots a paid consultation into a receipt numbered number.
func NewReceipt(number string, c *Consultation, issuedBy, currencySymbol string, now time.Time) (*Receipt, error) {
	clinic := "N/A"
	if c.ClinicID != nil && *c.ClinicID != "" {
		clinic = *c.ClinicID
	}

	content, err := json.Marshal(ReceiptContent{
		ReceiptNumber:    number,
		ConsultationID:   c.ID,
		PatientID:        c.PatientID,
		DoctorID:         c.DoctorID,
		Clinic:           clinic,
		ConsultationDate: c.ScheduledDate,
		ConsultationTime: c.ScheduledTime,
		ConsultationType: c.Type,
		Amount:           FormatAmount(currencySymbol, c.Fee),
		PaymentMethod:    c.PaymentMethod,
		PaymentStatus:    c.PaymentStatus,
		IssuedBy:         issuedBy,
		IssuedAt:         now,
		ChiefComplaint:   c.ChiefComplaint,
	})
	if err != nil {
		return nil, err
	}

	return &Receipt{
		Number:         number,
		ConsultationID: c.ID,
		Amount:         c.Fee,
		PaymentMethod:  c.PaymentMethod,
		PaymentStatus:  c.PaymentStatus,
		IssuedBy:       issuedBy,
		Content:        content,
		IssuedAt:       now,
		UpdatedAt:      now,
	}, nil
}
