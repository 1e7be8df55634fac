package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/mehdidadah/scanzo/constants"
)

// Scan is a persisted extraction run for data transfer between layers.
type Scan struct {
	ID         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	Vendor     *string   `json:"vendor,omitempty"`
	TxDate     *string   `json:"tx_date,omitempty"`
	TotalHT    *float64  `json:"total_ht,omitempty"`
	TVAAmount  *float64  `json:"tva_amount,omitempty"`
	TotalTTC   *float64  `json:"total_ttc,omitempty"`
	Confidence float64   `json:"confidence"`
	Coherent   bool      `json:"coherent"`
	Warnings   []string  `json:"warnings"`
	RawText    string    `json:"raw_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewScan maps an extraction result onto a Scan record ready for persistence.
func NewScan(filename, rawText string, res ExtractionResult) Scan {
	s := Scan{
		ID:         uuid.New(),
		Filename:   filename,
		Confidence: res.GlobalConfidence,
		Coherent:   res.Coherent,
		Warnings:   res.Warnings,
		RawText:    rawText,
		CreatedAt:  time.Now().UTC(),
	}
	if f := res.Field(constants.FieldVendor); f.Resolved() {
		v := f.Text
		s.Vendor = &v
	}
	if f := res.Field(constants.FieldDate); f.Resolved() {
		d := f.Text
		s.TxDate = &d
	}
	s.TotalHT = amountOf(res, constants.FieldTotalHT)
	s.TVAAmount = amountOf(res, constants.FieldTVAAmount)
	s.TotalTTC = amountOf(res, constants.FieldTotalTTC)
	return s
}

func amountOf(res ExtractionResult, field string) *float64 {
	f := res.Field(field)
	if !f.Resolved() || f.Amount == nil {
		return nil
	}
	v, _ := f.Amount.Float64()
	return &v
}
