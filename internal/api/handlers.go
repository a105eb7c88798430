package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/rps-canvas/internal/dispatch"
	"github.com/MJE43/rps-canvas/internal/journal"
	"github.com/MJE43/rps-canvas/internal/webhook"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok", Name: AppName})
}

// handleWebhook classifies one delivery, dispatches it and acknowledges.
// Only an undispatchable envelope produces a non-2xx status.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	received := time.Now()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorHandler.HandleError(w, r, NewError(ErrTypePayloadTooLarge, "Webhook body too large").
				WithRequestID(requestID).
				WithContext("limit_bytes", tooLarge.Limit).
				Build(), http.StatusRequestEntityTooLarge)
			return
		}
		s.errorHandler.HandleMalformedEnvelope(w, r, err)
		return
	}

	delivery, err := webhook.Classify(raw)
	if err != nil {
		s.errorHandler.HandleMalformedEnvelope(w, r, err)
		return
	}

	env := delivery.Envelope
	s.logger.Printf("webhook_received request_id=%s type=%s tenant_id=%s app_id=%s",
		requestID, delivery.Event.MessageType(), env.TenantID, env.App.ID)

	rep := s.dispatcher.Dispatch(r.Context(), delivery.Event)
	s.record(r.Context(), requestID, received, delivery, rep)

	s.writeJSON(w, http.StatusOK, rep.Ack)
}

func (s *Server) record(ctx context.Context, requestID string, received time.Time, delivery webhook.Delivery, rep dispatch.Report) {
	if s.journal == nil {
		return
	}
	d := journal.Delivery{
		ReceivedAt:  received,
		RequestID:   requestID,
		MessageType: delivery.Event.MessageType(),
		TenantID:    delivery.Envelope.TenantID,
		AppID:       delivery.Envelope.App.ID,
		CanvasID:    rep.CanvasID,
		Action:      string(rep.Action),
		DurationMs:  rep.Duration.Milliseconds(),
	}
	switch e := delivery.Event.(type) {
	case webhook.CanvasCreated:
		d.FeatureID = e.FeatureID
	case webhook.UserInteracted:
		d.ButtonID = e.ButtonID
	}
	if rep.Err != nil {
		d.Error = rep.Err.Error()
	}
	if _, err := s.journal.Record(context.WithoutCancel(ctx), d); err != nil {
		s.logger.Printf("journal_record_failed request_id=%s error=%q", requestID, err)
	}
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.errorHandler.HandleError(w, r, NewError(ErrTypeNotFound, "Delivery journal is disabled").
			WithRequestID(middleware.GetReqID(r.Context())).
			Build(), http.StatusNotFound)
		return
	}

	q := journal.Query{Limit: 100, Action: r.URL.Query().Get("action")}
	var ok bool
	if q.Limit, ok = s.intParam(w, r, "limit", q.Limit, 1, 500); !ok {
		return
	}
	if q.Offset, ok = s.intParam(w, r, "offset", 0, 0, -1); !ok {
		return
	}

	list, err := s.journal.List(r.Context(), q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	counts, err := s.journal.Counts(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, DeliveriesResponse{
		Deliveries: list,
		Counts:     counts,
		Limit:      q.Limit,
		Offset:     q.Offset,
		Action:     q.Action,
	})
}

// intParam parses an optional integer query parameter. hi < 0 means
// unbounded. It writes the error response itself and returns false on a bad
// value.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi >= 0 && v > hi) {
		s.errorHandler.HandleValidationError(w, r, name, "invalid "+name+" "+strconv.Quote(raw))
		return 0, false
	}
	return v, true
}
