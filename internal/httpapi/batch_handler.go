package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/service"
	"github.com/google/uuid"
)

type batchOpRequest struct {
	Op        string  `json:"op"`
	ProductID int64   `json:"productId,omitempty"`
	Qty       int     `json:"qty,omitempty"`
	OptionIDs []int64 `json:"optionIds,omitempty"`
	ItemID    string  `json:"itemId,omitempty"`
}

type batchRequest struct {
	Atomic     bool             `json:"atomic"`
	Operations []batchOpRequest `json:"operations"`
}

type BatchOpResultDTO struct {
	Index  int            `json:"index"`
	Op     string         `json:"op"`
	Status string         `json:"status"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

type BatchResponseDTO struct {
	Applied bool               `json:"applied"`
	Results []BatchOpResultDTO `json:"results"`
	Cart    *CartDTO           `json:"cart,omitempty"`
	Delta   *CartDeltaDTO      `json:"delta,omitempty"`
}

func (h *CartHandler) Batch(w http.ResponseWriter, r *http.Request) {
	m, ok := h.prepareMutation(w, r)
	if !ok {
		return
	}

	var req batchRequest
	if !h.decode(w, r, m, &req) {
		return
	}

	ops, err := parseBatchOps(req.Operations)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}

	result, err := h.manager.ExecuteBatch(r.Context(), m.cart.ID, m.expected, ops, req.Atomic)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}

	resp := BatchResponseDTO{
		Applied: result.Applied,
		Results: batchResults(result.Results),
	}

	status := http.StatusOK
	switch {
	case req.Atomic && !result.Applied:
		// Rolled back entirely; the pre-batch cart and ETag stand.
		status = http.StatusUnprocessableEntity
		w.Header().Set("ETag", ETagFor(m.cart.ID, m.cart.Version))
	default:
		if anyFailed(result.Results) {
			status = http.StatusMultiStatus
		}
		if DetermineResponseMode(r) == ModeDelta {
			delta := BuildDelta(result.Cart, result.Changes)
			resp.Delta = &delta
		} else {
			dto := h.fullDTO(r.Context(), result.Cart)
			resp.Cart = &dto
		}
		w.Header().Set("ETag", ETagFor(result.Cart.ID, result.Cart.Version))
	}

	body, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		h.log.Error("marshal batch response", "error", marshalErr)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	h.recordOutcome(r.Context(), m, status, body)
	respondRaw(w, status, body)
}

func parseBatchOps(reqs []batchOpRequest) ([]service.BatchOp, error) {
	ops := make([]service.BatchOp, 0, len(reqs))
	for i, op := range reqs {
		parsed := service.BatchOp{
			Op:        service.BatchOpType(op.Op),
			ProductID: op.ProductID,
			Qty:       op.Qty,
			OptionIDs: op.OptionIDs,
		}
		switch parsed.Op {
		case service.BatchAdd:
		case service.BatchUpdate, service.BatchRemove:
			itemID, err := uuid.Parse(op.ItemID)
			if err != nil {
				return nil, domain.Validationf("operations", "operation %d: itemId must be a valid UUID", i)
			}
			parsed.ItemID = itemID
		default:
			return nil, domain.Validationf("operations", "operation %d: unknown op %q", i, op.Op)
		}
		ops = append(ops, parsed)
	}
	return ops, nil
}

func batchResults(results []service.BatchOpResult) []BatchOpResultDTO {
	out := make([]BatchOpResultDTO, 0, len(results))
	for _, res := range results {
		dto := BatchOpResultDTO{Index: res.Index, Op: string(res.Op), Status: "ok"}
		if !res.OK() {
			dto.Status = "failed"
			if de, ok := domain.AsError(res.Err); ok {
				resp := errorResponse(de)
				dto.Error = &resp
			} else {
				dto.Error = &ErrorResponse{Error: res.Err.Error()}
			}
		}
		out = append(out, dto)
	}
	return out
}

func anyFailed(results []service.BatchOpResult) bool {
	for _, res := range results {
		if !res.OK() {
			return true
		}
	}
	return false
}
