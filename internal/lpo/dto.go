package lpo

import (
	"time"

	"github.com/shopspring/decimal"
)

type lineRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	UOM         string          `json:"uom" validate:"required,max=16"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Category    string          `json:"category" validate:"max=64"`
	Tracking    string          `json:"tracking" validate:"omitempty,oneof=CONSUMABLE CAPITAL SERIALIZED"`
}

func (r lineRequest) input() LineInput {
	return LineInput{
		Description: r.Description,
		UOM:         r.UOM,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		Category:    r.Category,
		Tracking:    Tracking(r.Tracking),
	}
}

type createOrderRequest struct {
	VendorID        int64           `json:"vendor_id" validate:"gte=0"`
	VendorName      string          `json:"vendor_name" validate:"max=200"`
	BranchID        int64           `json:"branch_id" validate:"required,gt=0"`
	DepartmentID    int64           `json:"department_id" validate:"gte=0"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	VATPercent      decimal.Decimal `json:"vat_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	QuotationRef    string          `json:"quotation_ref" validate:"max=255"`
	DocumentRef     string          `json:"document_ref" validate:"max=255"`
	Notes           string          `json:"notes" validate:"max=2000"`
	Lines           []lineRequest   `json:"lines" validate:"dive"`
}

type lineUpdateRequest struct {
	LineID int64 `json:"line_id" validate:"required,gt=0"`
	lineRequest
}

type editOrderRequest struct {
	VendorID        *int64              `json:"vendor_id"`
	VendorName      *string             `json:"vendor_name" validate:"omitempty,max=200"`
	BranchID        *int64              `json:"branch_id"`
	DepartmentID    *int64              `json:"department_id"`
	Currency        *string             `json:"currency" validate:"omitempty,len=3"`
	VATPercent      *decimal.Decimal    `json:"vat_percent"`
	DiscountPercent *decimal.Decimal    `json:"discount_percent"`
	QuotationRef    *string             `json:"quotation_ref"`
	DocumentRef     *string             `json:"document_ref"`
	Notes           *string             `json:"notes"`
	AddLines        []lineRequest       `json:"add_lines" validate:"dive"`
	UpdateLines     []lineUpdateRequest `json:"update_lines" validate:"dive"`
	RemoveLines     []int64             `json:"remove_lines" validate:"dive,gt=0"`
}

func (r editOrderRequest) input() EditOrderInput {
	in := EditOrderInput{
		VendorID:        r.VendorID,
		VendorName:      r.VendorName,
		BranchID:        r.BranchID,
		DepartmentID:    r.DepartmentID,
		Currency:        r.Currency,
		VATPercent:      r.VATPercent,
		DiscountPercent: r.DiscountPercent,
		QuotationRef:    r.QuotationRef,
		DocumentRef:     r.DocumentRef,
		Notes:           r.Notes,
		RemoveLines:     r.RemoveLines,
	}
	for _, l := range r.AddLines {
		in.AddLines = append(in.AddLines, l.input())
	}
	for _, l := range r.UpdateLines {
		in.UpdateLines = append(in.UpdateLines, LineUpdate{LineID: l.LineID, LineInput: l.input()})
	}
	return in
}

type approveRequest struct {
	Tier    string `json:"tier" validate:"required,oneof=DEPT GM ACC"`
	Comment string `json:"comment" validate:"max=1000"`
}

type rejectRequest struct {
	Tier   string `json:"tier" validate:"required,oneof=DEPT GM ACC"`
	Reason string `json:"reason" validate:"max=1000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type invoiceRequest struct {
	InvoiceRef string `json:"invoice_ref" validate:"required,max=100"`
}

type receiveRequest struct {
	Quantity        decimal.Decimal `json:"quantity"`
	Condition       string          `json:"condition" validate:"required,oneof=NEW GOOD DAMAGED DEFECTIVE"`
	SerialNumbers   []string        `json:"serial_numbers" validate:"dive,max=100"`
	Destination     string          `json:"destination" validate:"max=200"`
	ReceivedOn      string          `json:"received_on" validate:"omitempty,datetime=2006-01-02"`
	DeliveryNoteRef string          `json:"delivery_note_ref" validate:"max=100"`
}

type deliveryLineRequest struct {
	LineID        int64           `json:"line_id" validate:"required,gt=0"`
	Quantity      decimal.Decimal `json:"quantity"`
	Condition     string          `json:"condition" validate:"required,oneof=NEW GOOD DAMAGED DEFECTIVE"`
	SerialNumbers []string        `json:"serial_numbers" validate:"dive,max=100"`
	Destination   string          `json:"destination" validate:"max=200"`
}

type deliveryRequest struct {
	DeliveryNoteRef string                `json:"delivery_note_ref" validate:"max=100"`
	ReceivedOn      string                `json:"received_on" validate:"omitempty,datetime=2006-01-02"`
	Destination     string                `json:"destination" validate:"max=200"`
	Lines           []deliveryLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineResponse struct {
	ID               int64           `json:"id"`
	Seq              int             `json:"seq"`
	Description      string          `json:"description"`
	UOM              string          `json:"uom"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
	Category         string          `json:"category,omitempty"`
	Tracking         Tracking        `json:"tracking"`
	QuantityReceived decimal.Decimal `json:"quantity_received"`
	QuantityPending  decimal.Decimal `json:"quantity_pending"`
	Status           LineStatus      `json:"status"`
}

type rejectionResponse struct {
	Tier    Tier      `json:"tier"`
	ActorID int64     `json:"actor_id"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

type orderResponse struct {
	ID              int64              `json:"id"`
	Number          string             `json:"number"`
	VendorID        int64              `json:"vendor_id,omitempty"`
	VendorName      string             `json:"vendor_name"`
	BranchID        int64              `json:"branch_id"`
	DepartmentID    int64              `json:"department_id,omitempty"`
	Currency        string             `json:"currency"`
	VATPercent      decimal.Decimal    `json:"vat_percent"`
	DiscountPercent decimal.Decimal    `json:"discount_percent"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	VATAmount       decimal.Decimal    `json:"vat_amount"`
	DiscountAmount  decimal.Decimal    `json:"discount_amount"`
	Total           decimal.Decimal    `json:"total"`
	Status          Status             `json:"status"`
	Route           []Tier             `json:"route,omitempty"`
	Approvals       []ApprovalStamp    `json:"approvals,omitempty"`
	Rejection       *rejectionResponse `json:"rejection,omitempty"`
	AllowedActions  []Action           `json:"allowed_actions"`
	RequestedBy     int64              `json:"requested_by"`
	QuotationRef    string             `json:"quotation_ref,omitempty"`
	DocumentRef     string             `json:"document_ref,omitempty"`
	InvoiceRef      string             `json:"invoice_ref,omitempty"`
	CancelReason    string             `json:"cancel_reason,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	SubmittedAt     *time.Time         `json:"submitted_at,omitempty"`
	SentAt          *time.Time         `json:"sent_at,omitempty"`
	Lines           []lineResponse     `json:"lines"`
	Version         int64              `json:"version"`
}

func toOrderResponse(o Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		VendorID:        o.VendorID,
		VendorName:      o.VendorName,
		BranchID:        o.BranchID,
		DepartmentID:    o.DepartmentID,
		Currency:        o.Currency,
		VATPercent:      o.VATPercent,
		DiscountPercent: o.DiscountPercent,
		Subtotal:        o.Subtotal,
		VATAmount:       o.VATAmount,
		DiscountAmount:  o.DiscountAmount,
		Total:           o.Total,
		Status:          DeriveStatus(o),
		Route:           o.Route,
		Approvals:       o.Approvals,
		AllowedActions:  AllowedActions(o),
		RequestedBy:     o.RequestedBy,
		QuotationRef:    o.QuotationRef,
		DocumentRef:     o.DocumentRef,
		InvoiceRef:      o.InvoiceRef,
		CancelReason:    o.CancelReason,
		Notes:           o.Notes,
		SubmittedAt:     o.SubmittedAt,
		SentAt:          o.SentAt,
		Lines:           make([]lineResponse, 0, len(o.Lines)),
		Version:         o.Version,
	}
	if resp.AllowedActions == nil {
		resp.AllowedActions = []Action{}
	}
	if o.Rejection != nil {
		resp.Rejection = &rejectionResponse{Tier: o.Rejection.Tier, ActorID: o.Rejection.ActorID, Reason: o.Rejection.Reason, At: o.Rejection.At}
	}
	for _, l := range o.LiveLines() {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:               l.ID,
			Seq:              l.Seq,
			Description:      l.Description,
			UOM:              l.UOM,
			Quantity:         l.Quantity,
			UnitPrice:        l.UnitPrice,
			LineTotal:        l.LineTotal,
			Category:         l.Category,
			Tracking:         l.Tracking,
			QuantityReceived: l.QuantityReceived,
			QuantityPending:  l.Pending(),
			Status:           l.Status(),
		})
	}
	return resp
}

type receiptResponse struct {
	ID              string          `json:"id"`
	OrderID         int64           `json:"order_id"`
	LineID          int64           `json:"line_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	Condition       Condition       `json:"condition"`
	SerialNumbers   []string        `json:"serial_numbers,omitempty"`
	Destination     string          `json:"destination,omitempty"`
	ReceivedBy      int64           `json:"received_by"`
	ReceivedOn      string          `json:"received_on"`
	DeliveryNoteRef string          `json:"delivery_note_ref,omitempty"`
	RecordedAt      time.Time       `json:"recorded_at"`
	LineStatus      LineStatus      `json:"line_status,omitempty"`
	AssetIDs        []int64         `json:"asset_ids,omitempty"`
}

func toReceiptResponse(r ReceiptEvent) receiptResponse {
	return receiptResponse{
		ID:              r.ID.String(),
		OrderID:         r.OrderID,
		LineID:          r.LineID,
		Quantity:        r.Quantity,
		Condition:       r.Condition,
		SerialNumbers:   r.SerialNumbers,
		Destination:     r.Destination,
		ReceivedBy:      r.ReceivedBy,
		ReceivedOn:      r.ReceivedOn.Format("2006-01-02"),
		DeliveryNoteRef: r.DeliveryNoteRef,
		RecordedAt:      r.RecordedAt,
	}
}

func toResultResponse(res ReceiptResult) receiptResponse {
	out := toReceiptResponse(res.Receipt)
	out.LineStatus = res.LineStatus
	out.AssetIDs = res.AssetIDs
	return out
}

type approvalEntryResponse struct {
	ActorID int64     `json:"actor_id"`
	Tier    string    `json:"tier,omitempty"`
	Action  string    `json:"action"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

type auditEntryResponse struct {
	ActorID int64          `json:"actor_id"`
	Action  string         `json:"action"`
	Meta    map[string]any `json:"meta,omitempty"`
	At      time.Time      `json:"at"`
}

type historyResponse struct {
	Approvals []approvalEntryResponse `json:"approvals"`
	Audit     []auditEntryResponse    `json:"audit"`
}

func toHistoryResponse(h History) historyResponse {
	out := historyResponse{
		Approvals: make([]approvalEntryResponse, 0, len(h.Approvals)),
		Audit:     make([]auditEntryResponse, 0, len(h.Audit)),
	}
	for _, a := range h.Approvals {
		out.Approvals = append(out.Approvals, approvalEntryResponse{
			ActorID: a.ActorID,
			Tier:    a.Tier,
			Action:  string(a.Action),
			Note:    a.Note,
			At:      a.At,
		})
	}
	for _, a := range h.Audit {
		out.Audit = append(out.Audit, auditEntryResponse{ActorID: a.ActorID, Action: a.Action, Meta: a.Meta, At: a.At})
	}
	return out
}
