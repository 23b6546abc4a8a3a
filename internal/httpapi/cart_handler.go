package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/CreativeSeo33/new3-sub001/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	tokenCookieName = "cart_token"
	maxBodyBytes    = 1 << 20
)

type CartHandler struct {
	reader  *service.CartReader
	cctx    *service.CartContext
	manager *service.CartManager
	idem    *service.IdempotencyService
	live    *service.LivePriceCalculator
	pricer  port.DeliveryPricer
	log     *logger.Logger
	now     func() time.Time
}

func NewCartHandler(
	reader *service.CartReader,
	cctx *service.CartContext,
	manager *service.CartManager,
	idem *service.IdempotencyService,
	live *service.LivePriceCalculator,
	pricer port.DeliveryPricer,
	log *logger.Logger,
) *CartHandler {
	return &CartHandler{
		reader:  reader,
		cctx:    cctx,
		manager: manager,
		idem:    idem,
		live:    live,
		pricer:  pricer,
		log:     log,
		now:     time.Now,
	}
}

// identity extracts the explicit identity a request acts under: the
// authenticated user id set by the auth layer, and the guest token
// from cookie or header. No ambient session state.
func identity(r *http.Request) (*string, *uuid.UUID) {
	var userID *string
	if v := r.Header.Get("X-User-ID"); v != "" {
		userID = &v
	}

	raw := r.Header.Get("X-Cart-Token")
	if raw == "" {
		if cookie, err := r.Cookie(tokenCookieName); err == nil {
			raw = cookie.Value
		}
	}

	var token *uuid.UUID
	if raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			token = &parsed
		}
	}

	return userID, token
}

func setTokenCookie(w http.ResponseWriter, token uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token.String(),
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, token := identity(r)

	resolved, err := h.reader.Resolve(r.Context(), userID, token)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if resolved.NewToken != nil {
		setTokenCookie(w, *resolved.NewToken)
	}

	cart := resolved.Cart
	w.Header().Set("ETag", ETagFor(cart.ID, cart.Version))

	if NotModified(r, cart) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	respondJSON(w, http.StatusOK, h.fullDTO(r.Context(), cart))
}

type addItemRequest struct {
	ProductID int64   `json:"productId"`
	Qty       int     `json:"qty"`
	OptionIDs []int64 `json:"optionIds"`
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	m, ok := h.prepareMutation(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !h.decode(w, r, m, &req) {
		return
	}

	result, err := h.manager.AddItem(r.Context(), m.cart.ID, m.expected, req.ProductID, req.Qty, req.OptionIDs)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}
	h.finishMutation(w, r, m, result, http.StatusCreated)
}

type updateQtyRequest struct {
	Qty int `json:"qty"`
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, domain.Validationf("id", "item id must be a valid UUID"))
		return
	}

	m, ok := h.prepareMutation(w, r)
	if !ok {
		return
	}

	var req updateQtyRequest
	if !h.decode(w, r, m, &req) {
		return
	}

	result, err := h.manager.UpdateQty(r.Context(), m.cart.ID, m.expected, itemID, req.Qty)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}
	h.finishMutation(w, r, m, result, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, domain.Validationf("id", "item id must be a valid UUID"))
		return
	}

	m, ok := h.prepareMutation(w, r)
	if !ok {
		return
	}

	result, err := h.manager.RemoveItem(r.Context(), m.cart.ID, m.expected, itemID)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}
	h.finishMutation(w, r, m, result, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	m, ok := h.prepareMutation(w, r)
	if !ok {
		return
	}

	result, err := h.manager.ClearCart(r.Context(), m.cart.ID, m.expected)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}
	h.finishMutation(w, r, m, result, http.StatusOK)
}

type patchCartRequest struct {
	PricingPolicy string `json:"pricingPolicy"`
}

func (h *CartHandler) PatchCart(w http.ResponseWriter, r *http.Request) {
	m, ok := h.prepareMutation(w, r)
	if !ok {
		return
	}

	var req patchCartRequest
	if !h.decode(w, r, m, &req) {
		return
	}

	policy, err := domain.ParsePricingPolicy(req.PricingPolicy)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}

	result, err := h.manager.SetPricingPolicy(r.Context(), m.cart.ID, m.expected, policy)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}
	h.finishMutation(w, r, m, result, http.StatusOK)
}

func (h *CartHandler) Reprice(w http.ResponseWriter, r *http.Request) {
	m, ok := h.prepareMutation(w, r)
	if !ok {
		return
	}

	result, err := h.manager.Reprice(r.Context(), m.cart.ID, m.expected)
	if err != nil {
		h.failMutation(w, r, m, err)
		return
	}
	h.finishMutation(w, r, m, result, http.StatusOK)
}

// mutation carries per-request state between the shared prologue and
// the endpoint bodies.
type mutation struct {
	cart        domain.Cart
	expected    int64
	body        []byte
	idemKey     string
	idemExpires time.Time
}

// prepareMutation runs the shared prologue of every mutating endpoint:
// body capture, cart resolution, conditional-write guard, idempotency
// begin. A false return means a response has been written already.
func (h *CartHandler) prepareMutation(w http.ResponseWriter, r *http.Request) (*mutation, bool) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondDomainError(w, domain.Validationf("body", "request body unreadable or too large"))
		return nil, false
	}

	userID, token := identity(r)
	resolved, err := h.cctx.GetOrCreate(ctx, userID, token)
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}
	if resolved.NewToken != nil {
		setTokenCookie(w, *resolved.NewToken)
	}

	cart := resolved.Cart

	if guardErr := CheckPrecondition(r, cart); guardErr != nil {
		w.Header().Set("ETag", ETagFor(cart.ID, cart.Version))
		resp := errorResponse(guardErr)
		if guardErr.Kind == domain.KindPreconditionFailed {
			// Attach the fresh cart so the client can re-base and retry.
			dto := h.fullDTO(ctx, cart)
			resp.Cart = &dto
		}
		respondJSON(w, statusFor(guardErr.Kind), resp)
		return nil, false
	}

	m := &mutation{cart: cart, expected: IfMatchVersion(r, cart), body: body}

	if key := r.Header.Get("Idempotency-Key"); key != "" {
		hash := requestHash(r.Method, r.URL.Path, body)
		decision, err := h.idem.Begin(ctx, key, cart.ID, r.Method+" "+r.URL.Path, hash, h.now())
		if err != nil {
			h.respondError(w, err)
			return nil, false
		}

		w.Header().Set("Idempotency-Key", key)
		switch decision.Outcome {
		case service.OutcomeStarted:
			m.idemKey = key
			m.idemExpires = decision.Record.ExpiresAt
			w.Header().Set("Idempotency-Expires", decision.Record.ExpiresAt.UTC().Format(time.RFC3339))

		case service.OutcomeReplay:
			w.Header().Set("Idempotency-Replay", "true")
			w.Header().Set("Idempotency-Expires", decision.Record.ExpiresAt.UTC().Format(time.RFC3339))
			respondRaw(w, decision.Record.HTTPStatus, decision.Record.ResponseBody)
			return nil, false

		case service.OutcomeInFlight:
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
			ms := decision.RetryAfter.Milliseconds()
			respondJSON(w, http.StatusConflict, ErrorResponse{
				Error:        "request with this idempotency key is still in flight",
				Code:         string(domain.KindIdempotencyInFlight),
				RetryAfterMs: &ms,
			})
			return nil, false

		case service.OutcomeConflict:
			respondDomainError(w, domain.ErrIdempotencyConflict(decision.Record.RequestHash, hash))
			return nil, false
		}
	}

	return m, true
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, m *mutation, dst any) bool {
	if err := json.Unmarshal(m.body, dst); err != nil {
		h.failValidation(w, r.Context(), m, domain.Validationf("body", "invalid JSON body"))
		return false
	}
	return true
}

// finishMutation serializes the response once, records it for replay
// and sends it with the fresh ETag.
func (h *CartHandler) finishMutation(w http.ResponseWriter, r *http.Request, m *mutation, result service.MutationResult, status int) {
	ctx := r.Context()

	var payload any
	if DetermineResponseMode(r) == ModeDelta {
		payload = BuildDelta(result.Cart, result.Changes)
	} else {
		payload = h.fullDTO(ctx, result.Cart)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal mutation response", "error", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	w.Header().Set("ETag", ETagFor(result.Cart.ID, result.Cart.Version))
	h.recordOutcome(ctx, m, status, body)
	respondRaw(w, status, body)
}

// failMutation maps a mutation failure onto the wire and settles the
// idempotency record: transient failures release the key, permanent
// ones are stored and replayed like any other outcome.
func (h *CartHandler) failMutation(w http.ResponseWriter, r *http.Request, m *mutation, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		h.log.Error("cart mutation failed", "error", err)
		h.abortIdempotency(r.Context(), m)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	if transientKind(de.Kind) {
		h.abortIdempotency(r.Context(), m)
		respondDomainError(w, de)
		return
	}

	status := statusFor(de.Kind)
	body, marshalErr := json.Marshal(errorResponse(de))
	if marshalErr != nil {
		respondDomainError(w, de)
		return
	}

	h.recordOutcome(r.Context(), m, status, body)
	respondRaw(w, status, body)
}

func (h *CartHandler) failValidation(w http.ResponseWriter, ctx context.Context, m *mutation, de *domain.Error) {
	status := statusFor(de.Kind)
	if body, err := json.Marshal(errorResponse(de)); err == nil {
		h.recordOutcome(ctx, m, status, body)
		respondRaw(w, status, body)
		return
	}
	respondDomainError(w, de)
}

func (h *CartHandler) recordOutcome(ctx context.Context, m *mutation, status int, body []byte) {
	if m.idemKey == "" {
		return
	}
	if err := h.idem.Finish(ctx, m.idemKey, status, body, h.now()); err != nil {
		h.log.Error("idempotency finish failed", "key", m.idemKey, "error", err)
	}
}

func (h *CartHandler) abortIdempotency(ctx context.Context, m *mutation) {
	if m.idemKey == "" {
		return
	}
	if err := h.idem.Abort(ctx, m.idemKey); err != nil {
		h.log.Error("idempotency abort failed", "key", m.idemKey, "error", err)
	}
}

func (h *CartHandler) respondError(w http.ResponseWriter, err error) {
	if de, ok := domain.AsError(err); ok {
		respondDomainError(w, de)
		return
	}
	h.log.Error("request failed", "error", err)
	respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// fullDTO assembles the full envelope: live annotations under the LIVE
// policy and a shipping quote, both tolerated as best effort.
func (h *CartHandler) fullDTO(ctx context.Context, cart domain.Cart) CartDTO {
	var quotes []service.LiveQuote
	if cart.PricingPolicy == domain.PolicyLive && h.live != nil {
		q, err := h.live.Quotes(ctx, cart)
		if err != nil {
			h.log.Warn("live price quotes failed", "cart_id", cart.ID, "error", err)
		} else {
			quotes = q
		}
	}

	var shipping *domain.ShippingInfo
	if h.pricer != nil && cart.Shipping.City != "" {
		s, err := h.pricer.Quote(ctx, cart)
		if err != nil {
			h.log.Warn("delivery quote failed", "cart_id", cart.ID, "error", err)
		} else {
			shipping = &s
		}
	}

	return BuildCartDTO(cart, quotes, shipping)
}

func requestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{'\n'})
	sum.Write([]byte(path))
	sum.Write([]byte{'\n'})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
