package api

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/apflow/ap-slo-engine/internal/services"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

// GRPCService adapts the SLO service facade to SLOEngineServer.
type GRPCService struct {
	logger *slog.Logger
	svc    *services.SLOService
}

// NewGRPCService constructs the gRPC adapter.
func NewGRPCService(logger *slog.Logger, svc *services.SLOService) *GRPCService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCService{logger: logger, svc: svc}
}

// StatusFromError maps service errors onto gRPC status codes.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	msg := utils.Message(err)
	switch services.Classify(err) {
	case services.KindInvalid:
		return status.Error(codes.InvalidArgument, msg)
	case services.KindNotFound:
		return status.Error(codes.NotFound, msg)
	case services.KindConflict:
		return status.Error(codes.FailedPrecondition, msg)
	case services.KindUnavailable:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

func (g *GRPCService) decode(in *structpb.Struct, out any) error {
	if err := FromStruct(in, out); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func (g *GRPCService) reply(method string, v any, err error) (*structpb.Struct, error) {
	if err != nil {
		if services.Classify(err) == services.KindInternal {
			g.logger.Error("rpc failed", slog.String("method", method), slog.Any("error", err))
		}
		return nil, StatusFromError(err)
	}
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// RunMeasurements implements SLOEngineServer.
func (g *GRPCService) RunMeasurements(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RunMeasurementsRequest
	if err := g.decode(in, &req); err != nil {
		return nil, err
	}
	res, err := g.svc.RunMeasurements(ctx, req.Period, req.Hours)
	return g.reply("RunMeasurements", ToBatchResult(res), err)
}

// CalculateSLO implements SLOEngineServer.
func (g *GRPCService) CalculateSLO(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req CalculateSLORequest
	if err := g.decode(in, &req); err != nil {
		return nil, err
	}
	res, err := g.svc.CalculateSLO(ctx, req.SLOID, req.Hours)
	return g.reply("CalculateSLO", ToSLOResult(res), err)
}

// AcknowledgeAlert implements SLOEngineServer.
func (g *GRPCService) AcknowledgeAlert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AcknowledgeAlertRequest
	if err := g.decode(in, &req); err != nil {
		return nil, err
	}
	alert, err := g.svc.AcknowledgeAlert(ctx, req.AlertID, req.Actor)
	return g.reply("AcknowledgeAlert", ToAlert(alert), err)
}

// ResolveAlert implements SLOEngineServer.
func (g *GRPCService) ResolveAlert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ResolveAlertRequest
	if err := g.decode(in, &req); err != nil {
		return nil, err
	}
	alert, err := g.svc.ResolveAlert(ctx, req.AlertID, req.Notes)
	return g.reply("ResolveAlert", ToAlert(alert), err)
}

// GetDashboard implements SLOEngineServer.
func (g *GRPCService) GetDashboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DashboardRequest
	if err := g.decode(in, &req); err != nil {
		return nil, err
	}
	snap, err := g.svc.Dashboard(ctx, req.Days, req.SLIType)
	return g.reply("GetDashboard", ToDashboard(snap), err)
}

// GetMeasurementHistory implements SLOEngineServer.
func (g *GRPCService) GetMeasurementHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req HistoryRequest
	if err := g.decode(in, &req); err != nil {
		return nil, err
	}
	hist, err := g.svc.MeasurementHistory(ctx, req.SLOID, req.Days)
	return g.reply("GetMeasurementHistory", ToHistory(hist), err)
}

// ListAlerts implements SLOEngineServer.
func (g *GRPCService) ListAlerts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListAlertsRequest
	if err := g.decode(in, &req); err != nil {
		return nil, err
	}
	alerts, err := g.svc.ListAlerts(ctx, services.AlertQuery{
		SLOID:          req.SLOID,
		Severity:       req.Severity,
		UnresolvedOnly: req.UnresolvedOnly,
		SinceDays:      req.SinceDays,
		Limit:          req.Limit,
	})
	return g.reply("ListAlerts", ListAlertsResponse{Alerts: ToAlerts(alerts)}, err)
}
