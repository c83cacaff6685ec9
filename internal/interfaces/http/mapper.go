package http

import (
	"github.com/jhoicas/medstock-rfid/internal/application/dispensing"
	"github.com/jhoicas/medstock-rfid/internal/application/dto"
	"github.com/jhoicas/medstock-rfid/internal/application/scan"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

func toBatch(b *entity.Batch) *dto.BatchResponse {
	if b == nil {
		return nil
	}
	return &dto.BatchResponse{
		ID:         b.ID,
		ProductID:  b.ProductID,
		LotNumber:  b.LotNumber,
		ExpiryDate: b.ExpiryDate,
		EntryDate:  b.EntryDate,
		Quantity:   b.Quantity,
		TagUID:     b.TagUID,
		UnitCost:   b.UnitCost,
	}
}

func toBatches(list []*entity.Batch) []dto.BatchResponse {
	out := make([]dto.BatchResponse, 0, len(list))
	for _, b := range list {
		out = append(out, *toBatch(b))
	}
	return out
}

func toAllocations(list []stock.BatchAllocation) []dto.AllocationResponse {
	out := make([]dto.AllocationResponse, 0, len(list))
	for _, a := range list {
		out = append(out, dto.AllocationResponse{
			BatchID:          a.BatchID,
			ProductID:        a.ProductID,
			Quantity:         a.Quantity,
			PreviousQuantity: a.PreviousQuantity,
			NewQuantity:      a.NewQuantity,
		})
	}
	return out
}

func toLedger(list []*entity.StockLedgerEntry) []dto.LedgerEntryResponse {
	out := make([]dto.LedgerEntryResponse, 0, len(list))
	for _, e := range list {
		out = append(out, dto.LedgerEntryResponse{
			Seq:              e.Seq,
			Kind:             e.Kind,
			PreviousQuantity: e.PreviousQuantity,
			NewQuantity:      e.NewQuantity,
			Delta:            e.Delta(),
			AreaID:           e.AreaID,
			EffectiveDate:    e.EffectiveDate,
			Note:             e.Note,
			Reference:        e.Reference,
		})
	}
	return out
}

func toPending(pc *entity.PendingContext) *dto.PendingContextResponse {
	if pc == nil {
		return nil
	}
	return &dto.PendingContextResponse{
		ID:             pc.ID,
		Mode:           pc.Mode,
		State:          pc.State,
		TargetBatchID:  pc.TargetBatchID,
		UID:            pc.ResolvedUID,
		ProductID:      pc.ProductID,
		PrescriptionID: pc.PrescriptionID,
		AreaID:         pc.AreaID,
		Quantity:       pc.Quantity,
		ExpiresAt:      pc.ExpiresAt,
	}
}

func toDispense(r *dispensing.Result) *dto.DispenseResponse {
	if r == nil {
		return nil
	}
	return &dto.DispenseResponse{
		PrescriptionID: r.PrescriptionID,
		ItemID:         r.ItemID,
		ProductID:      r.ProductID,
		Quantity:       r.Quantity,
		Allocations:    toAllocations(r.Allocations),
		Closed:         r.Closed,
	}
}

func toScanResult(r *scan.Result) dto.ScanResultResponse {
	out := dto.ScanResultResponse{
		Outcome:   string(r.Outcome),
		SessionID: r.SessionID,
		UID:       r.UID,
		Batch:     toBatch(r.Batch),
		Dispense:  toDispense(r.Dispense),
		Pending:   toPending(r.Pending),
	}
	if r.Consumption != nil {
		out.Allocations = toAllocations(r.Consumption.Allocations)
	}
	return out
}

func toSession(st scan.SessionState) dto.SessionResponse {
	return dto.SessionResponse{
		SessionID:      st.SessionID,
		PrescriptionID: st.PrescriptionID,
		Pending:        toPending(st.Pending),
		Last:           toPending(st.Last),
	}
}

func toPrescription(p *entity.Prescription, fulfillments []*entity.PrescriptionFulfillment) dto.PrescriptionResponse {
	out := dto.PrescriptionResponse{
		ID:           p.ID,
		PatientRef:   p.PatientRef,
		Status:       p.Status,
		Items:        make([]dto.PrescriptionItemResponse, 0, len(p.Items)),
		Fulfillments: make([]dto.FulfillmentResponse, 0, len(fulfillments)),
		CreatedAt:    p.CreatedAt,
	}
	for _, it := range p.Items {
		out.Items = append(out.Items, dto.PrescriptionItemResponse{
			ID:                it.ID,
			ProductID:         it.ProductID,
			Position:          it.Position,
			QuantityRequired:  it.QuantityRequired,
			QuantityDispensed: it.QuantityDispensed,
			Remaining:         it.Remaining(),
		})
	}
	for _, f := range fulfillments {
		out.Fulfillments = append(out.Fulfillments, dto.FulfillmentResponse{
			ItemID:    f.ItemID,
			BatchID:   f.BatchID,
			Quantity:  f.Quantity,
			SessionID: f.SessionID,
			CreatedAt: f.CreatedAt,
		})
	}
	return out
}
