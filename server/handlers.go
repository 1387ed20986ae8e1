package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/etnz/holdings"
	"github.com/etnz/holdings/date"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// errBadRequest flags malformed requests, before they reach the engine.
var errBadRequest = errors.New("bad request")

type positionResponse struct {
	Position  holdings.Position  `json:"position"`
	Aggregate holdings.Aggregate `json:"aggregate"`
}

type eventRequest struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Date      date.Date       `json:"date"`
	Quantity  decimal.Decimal `json:"quantity"`
	Currency  string          `json:"currency"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Fees      decimal.Decimal `json:"fees"`
	Memo      string          `json:"memo"`
}

// patchRequest mirrors holdings.EventPatch: absent fields are left unchanged.
type patchRequest struct {
	Kind      *string          `json:"kind"`
	Date      *date.Date       `json:"date"`
	Quantity  *decimal.Decimal `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	Fees      *decimal.Decimal `json:"fees"`
	Memo      *string          `json:"memo"`
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
	Date  date.Date       `json:"date"`
}

type amountResponse struct {
	Amount      holdings.Money `json:"amount"`
	Approximate bool           `json:"approximate,omitempty"`
}

type netWorthResponse struct {
	Amount     holdings.Money `json:"amount"`
	Incomplete bool           `json:"incomplete,omitempty"`
	Unpriced   []string       `json:"unpriced,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.engine.ListPositions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	aggs, err := s.engine.ListAggregates(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	byID := make(map[string]holdings.Aggregate, len(aggs))
	for _, a := range aggs {
		byID[a.PositionID] = a
	}
	res := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		res = append(res, positionResponse{Position: p, Aggregate: byID[p.ID]})
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var in holdings.Position
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	agg, err := s.engine.CreatePosition(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	in.ID = agg.PositionID
	writeJSON(w, http.StatusCreated, positionResponse{Position: in, Aggregate: agg})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pos, err := s.engine.Position(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	agg, err := s.engine.GetAggregate(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{Position: pos, Aggregate: agg})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in eventRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	pos, err := s.engine.Position(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if in.Currency == "" {
		in.Currency = pos.Currency
	}
	e := holdings.Event{
		ID:         in.ID,
		Kind:       holdings.EventKind(in.Kind),
		Quantity:   holdings.Q(in.Quantity),
		UnitPrice:  holdings.M(in.UnitPrice, in.Currency),
		OccurredAt: in.Date,
		Memo:       in.Memo,
	}
	if !in.Fees.IsZero() {
		e.Fees = holdings.M(in.Fees, in.Currency)
	}
	agg, err := s.engine.MutateEvents(r.Context(), id, holdings.AddEvent{Event: e})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agg)
}

func (s *Server) handleEditEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in patchRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	pos, err := s.engine.Position(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var patch holdings.EventPatch
	if in.Kind != nil {
		k := holdings.EventKind(*in.Kind)
		patch.Kind = &k
	}
	if in.Quantity != nil {
		q := holdings.Q(*in.Quantity)
		patch.Quantity = &q
	}
	if in.UnitPrice != nil {
		p := holdings.M(*in.UnitPrice, pos.Currency)
		patch.UnitPrice = &p
	}
	if in.Fees != nil {
		f := holdings.M(*in.Fees, pos.Currency)
		patch.Fees = &f
	}
	patch.OccurredAt = in.Date
	patch.Memo = in.Memo

	agg, err := s.engine.MutateEvents(r.Context(), id, holdings.EditEvent{ID: chi.URLParam(r, "eventID"), Patch: patch})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleRemoveEvent(w http.ResponseWriter, r *http.Request) {
	agg, err := s.engine.MutateEvents(r.Context(), chi.URLParam(r, "id"), holdings.RemoveEvent{ID: chi.URLParam(r, "eventID")})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in priceRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	pos, err := s.engine.Position(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if in.Date.IsZero() {
		in.Date = date.Today()
	}
	agg, err := s.engine.SetPrice(r.Context(), id, holdings.M(in.Price, pos.Currency), in.Date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleRefreshPrice(w http.ResponseWriter, r *http.Request) {
	agg, err := s.engine.UpdatePrice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.UpdatePrices(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := holdings.ParseEventKind(q.Get("kind"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	from, err := optionalDate(q.Get("from"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := optionalDate(q.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	total, approx, err := s.engine.History(r.Context(), chi.URLParam(r, "id"), kind, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: total, Approximate: approx})
}

func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	home := r.URL.Query().Get("currency")
	if home == "" {
		home = s.engine.ReportCurrency()
	}
	if err := holdings.ValidateCurrency(home); err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	worth, err := s.engine.NetWorth(r.Context(), home)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, netWorthResponse{
		Amount:     worth.Total,
		Incomplete: !worth.Complete(),
		Unpriced:   worth.Unpriced,
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: amount: %w", errBadRequest, err))
		return
	}
	res, err := s.engine.Convert(holdings.M(amount, q.Get("from")), q.Get("to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: res})
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	t := s.engine.Rates()
	if t == nil {
		s.writeError(w, holdings.ErrNoRates)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.RefreshRates(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func optionalDate(s string) (date.Date, error) {
	if s == "" {
		return date.Date{}, nil
	}
	d, err := date.Parse(s)
	if err != nil {
		return d, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return d, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %w", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, holdings.ErrInvalidEvent),
		errors.Is(err, holdings.ErrInvalidPosition),
		errors.Is(err, holdings.ErrUnknownCurrency):
		return http.StatusBadRequest
	case errors.Is(err, holdings.ErrPositionNotFound),
		errors.Is(err, holdings.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, holdings.ErrPositionExists),
		errors.Is(err, holdings.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, holdings.ErrNegativeQuantity),
		errors.Is(err, holdings.ErrInvalidRate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, holdings.ErrNoRates),
		errors.Is(err, holdings.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
