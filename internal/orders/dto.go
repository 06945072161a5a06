package orders

import "time"

type orderLineForm struct {
	ServiceRecordID int64 `json:"service_record_id" validate:"required,gt=0"`
	PartID          int64 `json:"part_id" validate:"required,gt=0"`
	Qty             int64 `json:"quantity" validate:"required,gt=0"`
}

type createOrderForm struct {
	JobCardRef string          `json:"jobcard_ref" validate:"required,uuid4"`
	Note       string          `json:"note" validate:"max=500"`
	Lines      []orderLineForm `json:"lines" validate:"required,min=1,dive"`
}

type rejectForm struct {
	Note string `json:"note" validate:"max=500"`
}

type orderLineResponse struct {
	ServiceRecordID int64 `json:"service_record_id"`
	PartID          int64 `json:"part_id"`
	Qty             int64 `json:"quantity"`
}

type orderResponse struct {
	ID          int64               `json:"id"`
	Number      string              `json:"number"`
	JobCardRef  string              `json:"jobcard_ref"`
	Status      OrderStatus         `json:"status"`
	Fulfillment FulfillmentStatus   `json:"fulfillment_status"`
	Note        string              `json:"note,omitempty"`
	RequestedBy int64               `json:"requested_by"`
	DecidedBy   int64               `json:"decided_by,omitempty"`
	DecidedAt   *time.Time          `json:"decided_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	Lines       []orderLineResponse `json:"lines"`
}

func toOrderResponse(o PartOrder) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{
			ServiceRecordID: l.ServiceRecordID,
			PartID:          l.PartID,
			Qty:             l.Qty,
		})
	}
	return orderResponse{
		ID:          o.ID,
		Number:      o.Number,
		JobCardRef:  o.JobCardRef.String(),
		Status:      o.Status,
		Fulfillment: o.Fulfillment,
		Note:        o.Note,
		RequestedBy: o.RequestedBy,
		DecidedBy:   o.DecidedBy,
		DecidedAt:   o.DecidedAt,
		CreatedAt:   o.CreatedAt,
		Lines:       lines,
	}
}
