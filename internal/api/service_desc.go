package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// SLOEngineServiceName is the fully-qualified gRPC service name.
const SLOEngineServiceName = "apslo.v1.SLOEngine"

// SLOEngineServer is the server API for the SLOEngine service. Every method
// exchanges google.protobuf.Struct messages carrying the JSON wire types.
type SLOEngineServer interface {
	RunMeasurements(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CalculateSLO(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcknowledgeAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDashboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMeasurementHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAlerts(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SLOEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SLOEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + SLOEngineServiceName + "/" + name,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SLOEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SLOEngineServiceDesc describes the SLOEngine service for grpc.Server registration.
var SLOEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: SLOEngineServiceName,
	HandlerType: (*SLOEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunMeasurements", Handler: unaryHandler("RunMeasurements", SLOEngineServer.RunMeasurements)},
		{MethodName: "CalculateSLO", Handler: unaryHandler("CalculateSLO", SLOEngineServer.CalculateSLO)},
		{MethodName: "AcknowledgeAlert", Handler: unaryHandler("AcknowledgeAlert", SLOEngineServer.AcknowledgeAlert)},
		{MethodName: "ResolveAlert", Handler: unaryHandler("ResolveAlert", SLOEngineServer.ResolveAlert)},
		{MethodName: "GetDashboard", Handler: unaryHandler("GetDashboard", SLOEngineServer.GetDashboard)},
		{MethodName: "GetMeasurementHistory", Handler: unaryHandler("GetMeasurementHistory", SLOEngineServer.GetMeasurementHistory)},
		{MethodName: "ListAlerts", Handler: unaryHandler("ListAlerts", SLOEngineServer.ListAlerts)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "apslo/v1/slo_engine.proto",
}

// RegisterSLOEngineServer attaches srv to a gRPC server.
func RegisterSLOEngineServer(s grpc.ServiceRegistrar, srv SLOEngineServer) {
	s.RegisterService(&SLOEngineServiceDesc, srv)
}

// SLOEngineClient calls the SLOEngine service with typed wire values.
type SLOEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewSLOEngineClient wraps a client connection.
func NewSLOEngineClient(cc grpc.ClientConnInterface) *SLOEngineClient {
	return &SLOEngineClient{cc: cc}
}

func (c *SLOEngineClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := ToStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+SLOEngineServiceName+"/"+method, req, resp, opts...); err != nil {
		return err
	}
	return FromStruct(resp, out)
}

// RunMeasurements triggers a batch run.
func (c *SLOEngineClient) RunMeasurements(ctx context.Context, req RunMeasurementsRequest, opts ...grpc.CallOption) (BatchResult, error) {
	var out BatchResult
	err := c.invoke(ctx, "RunMeasurements", req, &out, opts...)
	return out, err
}

// CalculateSLO measures one SLO on demand.
func (c *SLOEngineClient) CalculateSLO(ctx context.Context, req CalculateSLORequest, opts ...grpc.CallOption) (SLOResult, error) {
	var out SLOResult
	err := c.invoke(ctx, "CalculateSLO", req, &out, opts...)
	return out, err
}

// AcknowledgeAlert acknowledges an alert.
func (c *SLOEngineClient) AcknowledgeAlert(ctx context.Context, req AcknowledgeAlertRequest, opts ...grpc.CallOption) (Alert, error) {
	var out Alert
	err := c.invoke(ctx, "AcknowledgeAlert", req, &out, opts...)
	return out, err
}

// ResolveAlert resolves an alert.
func (c *SLOEngineClient) ResolveAlert(ctx context.Context, req ResolveAlertRequest, opts ...grpc.CallOption) (Alert, error) {
	var out Alert
	err := c.invoke(ctx, "ResolveAlert", req, &out, opts...)
	return out, err
}

// GetDashboard fetches the dashboard snapshot.
func (c *SLOEngineClient) GetDashboard(ctx context.Context, req DashboardRequest, opts ...grpc.CallOption) (DashboardSnapshot, error) {
	var out DashboardSnapshot
	err := c.invoke(ctx, "GetDashboard", req, &out, opts...)
	return out, err
}

// GetMeasurementHistory fetches one SLO's history.
func (c *SLOEngineClient) GetMeasurementHistory(ctx context.Context, req HistoryRequest, opts ...grpc.CallOption) (MeasurementHistory, error) {
	var out MeasurementHistory
	err := c.invoke(ctx, "GetMeasurementHistory", req, &out, opts...)
	return out, err
}

// ListAlerts lists alerts.
func (c *SLOEngineClient) ListAlerts(ctx context.Context, req ListAlertsRequest, opts ...grpc.CallOption) (ListAlertsResponse, error) {
	var out ListAlertsResponse
	err := c.invoke(ctx, "ListAlerts", req, &out, opts...)
	return out, err
}
