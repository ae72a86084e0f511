package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/apflow/ap-slo-engine/internal/api"
	"github.com/apflow/ap-slo-engine/internal/services"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch services.Classify(err) {
	case services.KindInvalid:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
	}
	c.JSON(code, errorResponse{Error: utils.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// intQuery reads an optional integer query parameter.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, out any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.svc.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRun(c *gin.Context) {
	var req api.RunMeasurementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	res, err := s.svc.RunMeasurements(c.Request.Context(), req.Period, req.Hours)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ToBatchResult(res))
}

func (s *Server) handleCalculate(c *gin.Context) {
	var req api.CalculateSLORequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	res, err := s.svc.CalculateSLO(c.Request.Context(), c.Param("id"), req.Hours)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ToSLOResult(res))
}

func (s *Server) handleSetActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.svc.SetSLOActive(c.Request.Context(), c.Param("id"), active); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": active})
	}
}

func (s *Server) handleListSLOs(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	defs, err := s.svc.ListSLOs(c.Request.Context(), activeOnly)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListSLOsResponse{SLOs: api.ToSLOs(defs)})
}

func (s *Server) handleHistory(c *gin.Context) {
	days, err := intQuery(c, "days")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	hist, err := s.svc.MeasurementHistory(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ToHistory(hist))
}

func (s *Server) handleListAlerts(c *gin.Context) {
	sinceDays, err := intQuery(c, "sinceDays")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	alerts, err := s.svc.ListAlerts(c.Request.Context(), services.AlertQuery{
		SLOID:          c.Query("sloId"),
		Severity:       c.Query("severity"),
		UnresolvedOnly: c.Query("unresolved") == "true",
		SinceDays:      sinceDays,
		Limit:          limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListAlertsResponse{Alerts: api.ToAlerts(alerts)})
}

func (s *Server) handleAcknowledge(c *gin.Context) {
	var req api.AcknowledgeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	alert, err := s.svc.AcknowledgeAlert(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ToAlert(alert))
}

func (s *Server) handleResolve(c *gin.Context) {
	var req api.ResolveAlertRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	alert, err := s.svc.ResolveAlert(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ToAlert(alert))
}

func (s *Server) handleDashboard(c *gin.Context) {
	days, err := intQuery(c, "days")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	snap, err := s.svc.Dashboard(c.Request.Context(), days, c.Query("sliType"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ToDashboard(snap))
}
