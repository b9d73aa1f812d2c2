package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/document"
	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/pipeline"
	"github.com/fyrsmithlabs/contractd/internal/store"
	"github.com/fyrsmithlabs/contractd/pkg/auth"
)

// Service states reported by GET /api/v1/status.
const (
	stateOK           = "ok"
	stateDisabled     = "disabled"
	stateError        = "error"
	stateConnected    = "connected"
	stateDisconnected = "disconnected"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: s.config.ServiceName})
}

// handleStatus reports backing services and local store counts.
func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()
	resp := StatusResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Services: map[string]string{},
	}

	if sb := s.services.Supabase(); sb != nil {
		resp.Services["supabase"] = sb.BaseURL()
	}
	if svc := s.services.Analysis(); svc != nil {
		resp.Models = svc.Models(analysis.Request{})
	}

	resp.Services["store"] = stateDisabled
	if st := s.services.Store(); st != nil {
		counts, err := st.Counts(ctx)
		if err != nil {
			s.logger.Warn(ctx, "failed to count store rows", zap.Error(err))
			resp.Services["store"] = stateError
			resp.Status = "degraded"
		} else {
			resp.Services["store"] = stateOK
			resp.Counts = counts
		}
	}

	resp.Services["events"] = stateDisabled
	if nc := s.services.NATS(); nc != nil {
		resp.Services["events"] = stateConnected
		if !nc.IsConnected() {
			resp.Services["events"] = stateDisconnected
			resp.Status = "degraded"
		}
	}

	// Exporter trouble loses observability, not reviews, so the overall
	// status is left alone.
	if s.config.Telemetry != nil {
		resp.Services["telemetry"] = s.config.Telemetry.Status()
	}

	return c.JSON(http.StatusOK, resp)
}

// handleReview runs the full review pipeline on an uploaded contract.
//
// The multipart form carries the document in "file" plus contractType
// (required), perspective, reviewType, model, forceRefresh, solutionId,
// solutionKey and solutionTitle.
func (s *Server) handleReview(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	contractType := c.FormValue("contractType")
	if contractType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "contractType field is required")
	}
	if _, err := document.MIMEType(fh.Filename); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.loader.MaxSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read uploaded file")
	}
	doc, err := s.loader.FromBytes(fh.Filename, data)
	if err != nil {
		if errors.Is(err, document.ErrTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	forceRefresh, _ := strconv.ParseBool(c.FormValue("forceRefresh"))
	job := pipeline.Job{
		Document:     doc,
		ContractType: contractType,
		Perspective:  c.FormValue("perspective"),
		ReviewType:   c.FormValue("reviewType"),
		Model:        c.FormValue("model"),
		ForceRefresh: forceRefresh,
		Solution: analysis.Solution{
			ID:    c.FormValue("solutionId"),
			Key:   c.FormValue("solutionKey"),
			Title: c.FormValue("solutionTitle"),
		},
	}

	s.logger.Info(ctx, "review requested",
		zap.String("document", doc.Name),
		zap.String("contract_type", contractType),
		zap.String("owner", auth.OwnerID(c)))

	res := s.services.Pipeline().Run(ctx, job)
	if res.Failed() {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusOK, res)
}

// handleAnalyze runs an analysis for an existing ingestion. Clauses stored
// locally are used when the request carries none.
func (s *Server) handleAnalyze(c echo.Context) error {
	var req analysis.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid analysis request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := logging.WithIngestionID(c.Request().Context(), req.IngestionID)

	if len(req.Clauses) == 0 && req.IngestionID != "" {
		if st := s.services.Store(); st != nil {
			set, err := st.GetClauses(ctx, req.IngestionID)
			switch {
			case err == nil:
				req.Clauses = set.Clauses
			case !errors.Is(err, store.ErrNotFound):
				s.logger.Warn(ctx, "failed to load stored clauses", zap.Error(err))
			}
		}
	}

	res, err := s.services.Analysis().Analyze(ctx, req)
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidRequest) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error(ctx, "analysis failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

// handleGetAnalysis returns the stored analysis for an ingestion.
func (s *Server) handleGetAnalysis(c echo.Context) error {
	st := s.services.Store()
	if st == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "local store is disabled")
	}

	reviewType := c.QueryParam("reviewType")
	if reviewType == "" {
		reviewType = analysis.DefaultReviewType
	}

	res, err := st.GetAnalysis(c.Request().Context(), c.Param("ingestionId"), reviewType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// handleListAnalyses lists recent analyses, newest first.
func (s *Server) handleListAnalyses(c echo.Context) error {
	st := s.services.Store()
	if st == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "local store is disabled")
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	list, err := st.ListAnalyses(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListAnalysesResponse{Analyses: list})
}

// handleGetIngestion returns the local record of an ingestion.
func (s *Server) handleGetIngestion(c echo.Context) error {
	st := s.services.Store()
	if st == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "local store is disabled")
	}

	ing, err := st.GetIngestion(c.Request().Context(), c.Param("ingestionId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "ingestion not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, ing)
}
