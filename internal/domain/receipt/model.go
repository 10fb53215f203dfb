// Package receipt implements the POS receipt workflow: issue stock per
// line, post the sales journal, persist the receipt, all in one atomic
// transaction guarded by a caller-supplied idempotency key.
package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Status is the receipt lifecycle state.
type Status string

const (
	StatusPosted Status = "POSTED"
	StatusVoided Status = "VOIDED"
)

// Receipt is a completed point-of-sale transaction.
type Receipt struct {
	ID         id.ID       `db:"id" json:"id"`
	Number     string      `db:"number" json:"number"`
	BranchID   id.ID       `db:"branch_id" json:"branchId"`
	Status     Status      `db:"status" json:"status"`
	Subtotal   types.Money `db:"subtotal" json:"subtotal"`
	Tax        types.Money `db:"tax" json:"tax"`
	Discount   types.Money `db:"discount" json:"discount"`
	GrandTotal types.Money `db:"grand_total" json:"grandTotal"`
	PaidTotal  types.Money `db:"paid_total" json:"paidTotal"`
	JournalID  *id.ID      `db:"journal_id" json:"journalId,omitempty"`
	CashierID  string      `db:"cashier_id" json:"cashierId"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
	VoidedAt   *time.Time  `db:"voided_at" json:"voidedAt,omitempty"`
	VoidedBy   string      `db:"voided_by" json:"voidedBy,omitempty"`

	Lines []Line `db:"-" json:"lines,omitempty"`
}

// Line is one sold item on a receipt.
type Line struct {
	ID        id.ID          `db:"id" json:"id"`
	ReceiptID id.ID          `db:"receipt_id" json:"receiptId"`
	LineNo    int            `db:"line_no" json:"lineNo"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice types.Money    `db:"unit_price" json:"unitPrice"`
	LineTotal types.Money    `db:"line_total" json:"lineTotal"`
}

// ComputeTotals derives subtotal and grand total from the lines and the
// supplied tax/discount. grand_total = subtotal + tax - discount.
func (r *Receipt) ComputeTotals() {
	subtotal := decimal.Zero
	for i := range r.Lines {
		qty := decimal.NewFromFloat(r.Lines[i].Quantity.Float64())
		r.Lines[i].LineTotal = r.Lines[i].UnitPrice.Mul(qty)
		subtotal = subtotal.Add(r.Lines[i].LineTotal)
	}
	r.Subtotal = subtotal
	r.GrandTotal = subtotal.Add(r.Tax).Sub(r.Discount)
}

// Validate checks the receipt can be processed.
func (r *Receipt) Validate() error {
	if len(r.Lines) == 0 {
		return apperror.NewValidation("receipt has no lines")
	}
	for _, l := range r.Lines {
		if l.Quantity <= 0 {
			return apperror.NewValidation("receipt line quantity must be positive").
				WithDetail("line_no", l.LineNo).
				WithDetail("product_id", l.ProductID.String())
		}
		if l.UnitPrice.IsNegative() {
			return apperror.NewValidation("receipt line unit price cannot be negative").
				WithDetail("line_no", l.LineNo)
		}
	}
	if r.Tax.IsNegative() || r.Discount.IsNegative() {
		return apperror.NewValidation("tax and discount cannot be negative")
	}
	if r.GrandTotal.IsNegative() {
		return apperror.NewValidation("receipt grand total cannot be negative").
			WithDetail("grand_total", r.GrandTotal.String())
	}
	if r.PaidTotal.LessThan(r.GrandTotal) {
		return apperror.NewBusinessRule(apperror.CodeReceiptState, "Paid total does not cover grand total").
			WithDetail("paid_total", r.PaidTotal.String()).
			WithDetail("grand_total", r.GrandTotal.String())
	}
	return nil
}
