package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/dto"
	"github.com/radieske/draw-settlement/internal/settlement/ledger"
	"github.com/radieske/draw-settlement/internal/settlement/pipeline"
	"github.com/radieske/draw-settlement/internal/settlement/round"
	"github.com/radieske/draw-settlement/pkg/contracts/events"
)

type Runner interface {
	Run(ctx context.Context, sub pipeline.Submission) pipeline.Outcome
}

type ResultReader interface {
	Get(ctx context.Context, key round.Key) (domain.RoundResult, bool, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, key round.Key) (ledger.CreditReport, error)
}

type ResultCache interface {
	Get(ctx context.Context, id string) (domain.RoundResult, bool, error)
	Set(ctx context.Context, rr domain.RoundResult) error
}

// Submitter enfileira o resultado para o worker (?async=true).
type Submitter interface {
	PublishResultSubmitted(ctx context.Context, e events.ResultSubmitted) error
}

// Server expõe a API do painel admin de resultados.
type Server struct {
	log      *zap.Logger
	runner   Runner
	results  ResultReader
	recon    Reconciler
	roles    []string
	validate *validator.Validate

	cache  ResultCache
	submit Submitter
	now    func() time.Time
}

func NewServer(log *zap.Logger, runner Runner, results ResultReader, recon Reconciler, roles []string) *Server {
	return &Server{
		log:      log,
		runner:   runner,
		results:  results,
		recon:    recon,
		roles:    roles,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Server) WithCache(c ResultCache) *Server {
	s.cache = c
	return s
}

func (s *Server) WithSubmitter(sub Submitter) *Server {
	s.submit = sub
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/admin/results", func(r chi.Router) {
		r.Use(RequireRoles(s.roles))
		r.Post("/", s.submitResult)
		r.Get("/{key}", s.getResult)
		r.Post("/{key}/reconcile", s.reconcile)
	})
	return r
}

func (s *Server) submitResult(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(zap.String("requestId", middleware.GetReqID(r.Context())))

	var req dto.SubmitResultRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("failed to decode request body", zap.Error(err))
		fail(w, r, http.StatusBadRequest, "failed to decode request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fail(w, r, http.StatusBadRequest, validationMessage(verrs))
			return
		}
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("async") == "true" && s.submit != nil {
		// o worker data a chave pelo instante da submissão, não pelo consumo
		at := s.now()
		key := round.NewKey(req.GameID, req.RoundNumber, at).String()
		err := s.submit.PublishResultSubmitted(r.Context(), events.ResultSubmitted{
			GameID:      req.GameID,
			RoundNumber: req.RoundNumber,
			Result:      req.Result,
			SubmittedBy: r.Header.Get(UserHeader),
			TsUnixMs:    at.UnixMilli(),
		})
		if err != nil {
			log.Error("failed to enqueue result", zap.Error(err))
			fail(w, r, http.StatusServiceUnavailable, "failed to enqueue result")
			return
		}
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, dto.SubmitResultResponse{Success: true, Message: "result queued for settlement", Key: key})
		return
	}

	out := s.runner.Run(r.Context(), pipeline.Submission{
		GameID:      req.GameID,
		RoundNumber: req.RoundNumber,
		Result:      req.Result,
	})
	log.Info("result submission handled",
		zap.String("key", out.Key),
		zap.Bool("success", out.Success),
		zap.String("stage", string(out.Stage)),
	)

	render.Status(r, statusFor(out))
	render.JSON(w, r, dto.SubmitResultResponse{
		Success:        out.Success,
		Message:        out.Message,
		Error:          out.Error,
		Kind:           string(out.Kind),
		Key:            out.Key,
		Stage:          string(out.Stage),
		BetsProcessed:  out.Processed,
		BetsSkipped:    out.Skipped,
		CreditsApplied: out.Credits.Applied,
		CreditsFailed:  out.Credits.Failed,
	})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	key, err := round.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if s.cache != nil {
		if rr, ok, err := s.cache.Get(r.Context(), key.String()); err != nil {
			s.log.Warn("result cache get failed", zap.String("key", key.String()), zap.Error(err))
		} else if ok {
			render.JSON(w, r, toResultResponse(rr))
			return
		}
	}

	rr, found, err := s.results.Get(r.Context(), key)
	if err != nil {
		s.log.Error("failed to get result", zap.String("key", key.String()), zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "failed to get result")
		return
	}
	if !found {
		fail(w, r, http.StatusNotFound, "result not found")
		return
	}
	if s.cache != nil {
		if err := s.cache.Set(r.Context(), rr); err != nil {
			s.log.Warn("result cache set failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
	render.JSON(w, r, toResultResponse(rr))
}

// reconcile credita vencedoras ainda sem credited_at (retentativa de crédito parcial).
func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	key, err := round.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.recon.Reconcile(r.Context(), key)
	if err != nil {
		s.log.Error("reconcile failed", zap.String("key", key.String()), zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "reconcile failed")
		return
	}
	if !rep.Complete() {
		render.Status(r, http.StatusMultiStatus)
	}
	render.JSON(w, r, dto.ReconcileResponse{
		Key:      key.String(),
		Applied:  rep.Applied,
		Failed:   rep.Failed,
		Credited: rep.Credited,
	})
}

func statusFor(out pipeline.Outcome) int {
	if out.Success {
		return http.StatusOK
	}
	switch out.Kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindConflict, domain.KindInProgress:
		return http.StatusConflict
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func toResultResponse(rr domain.RoundResult) dto.ResultResponse {
	return dto.ResultResponse{
		ID:           rr.ID,
		GameID:       rr.GameID,
		Date:         rr.Date,
		RoundNumber:  rr.RoundNumber,
		Result:       rr.Result,
		Status:       string(rr.Status),
		AttemptCount: rr.AttemptCount,
		ErrorMessage: rr.ErrorMessage,
		CreatedAt:    rr.CreatedAt,
		UpdatedAt:    rr.UpdatedAt,
		CompletedAt:  rr.CompletedAt,
		FailedAt:     rr.FailedAt,
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, dto.ErrorResponse{Success: false, Error: msg})
}

func validationMessage(errs validator.ValidationErrors) string {
	var msgs []string
	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", err.Field()))
		case "numeric", "len":
			msgs = append(msgs, fmt.Sprintf("field %s must be exactly %d digits", err.Field(), round.ResultWidth))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", err.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}
