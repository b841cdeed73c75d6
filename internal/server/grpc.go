package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/sof-events/internal/common"
	"github.com/joseph-ayodele/sof-events/internal/events"
)

const (
	ExtractionServiceName = "sof.v1.ExtractionService"
	extractEventsMethod   = "/" + ExtractionServiceName + "/ExtractEvents"
)

// ExtractionServer is the gRPC surface of the extractor. Messages are
// google.protobuf.Struct values:
//
//	request:  {"filename": "sof.pdf", "content": "<base64>"} or {"text": "..."}
//	response: {"job_id": "...", "count": 2, "events": [{event, start, end, source}]}
type ExtractionServer interface {
	ExtractEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ExtractionServiceDesc registers an ExtractionServer on a grpc.Server.
var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: ExtractionServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExtractEvents", Handler: extractEventsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sof/v1/extraction.proto",
}

func extractEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractionServer).ExtractEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: extractEventsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractionServer).ExtractEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type ExtractionService struct {
	proc   Uploader
	logger *slog.Logger
}

func NewExtractionService(proc Uploader, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{proc: proc, logger: logger}
}

// ExtractEvents implements ExtractionServer
func (s *ExtractionService) ExtractEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	if text, ok := fields["text"]; ok {
		recs := events.Extract(text.GetStringValue())
		s.logger.Info("grpc.extract.text", "chars", len(text.GetStringValue()), "events", len(recs))
		return eventsStruct("", recs)
	}

	filename := strings.TrimSpace(fields["filename"].GetStringValue())
	if filename == "" {
		s.logger.Error("extract request missing filename")
		return nil, common.InvalidArgumentError("filename or text is required")
	}
	content, err := base64.StdEncoding.DecodeString(fields["content"].GetStringValue())
	if err != nil {
		s.logger.Error("extract request content is not base64", "filename", filename, "error", err)
		return nil, common.InvalidArgumentErrorf("content must be base64: %v", err)
	}
	if len(content) == 0 {
		return nil, common.InvalidArgumentError("content is required")
	}

	s.logger.Info("starting document extraction", "filename", filename, "bytes", len(content))
	res, err := s.proc.ProcessUpload(ctx, filename, bytes.NewReader(content))
	if err != nil {
		s.logger.Error("grpc.extract.failed", "filename", filename, "err", err)
		return nil, common.ToStatus(err)
	}

	jobID := ""
	if res.JobID != uuid.Nil {
		jobID = res.JobID.String()
	}
	return eventsStruct(jobID, res.Events)
}

func eventsStruct(jobID string, recs []events.Record) (*structpb.Struct, error) {
	list := make([]any, 0, len(recs))
	for _, r := range recs {
		var end any
		if r.End != nil {
			end = *r.End
		}
		list = append(list, map[string]any{
			"event":  r.Event,
			"start":  r.Start,
			"end":    end,
			"source": r.Source,
		})
	}
	out, err := structpb.NewStruct(map[string]any{
		"job_id": jobID,
		"count":  len(recs),
		"events": list,
	})
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}

// RecordsFromStruct reads the events of an ExtractEvents response.
func RecordsFromStruct(resp *structpb.Struct) []events.Record {
	items := resp.GetFields()["events"].GetListValue().GetValues()
	out := make([]events.Record, 0, len(items))
	for _, item := range items {
		f := item.GetStructValue().GetFields()
		r := events.Record{
			Event:  f["event"].GetStringValue(),
			Start:  f["start"].GetStringValue(),
			Source: f["source"].GetStringValue(),
		}
		if end, ok := f["end"].GetKind().(*structpb.Value_StringValue); ok {
			s := end.StringValue
			r.End = &s
		}
		out = append(out, r)
	}
	return out
}

// ExtractionClient calls ExtractEvents on a remote server.
type ExtractionClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractionClient(cc grpc.ClientConnInterface) *ExtractionClient {
	return &ExtractionClient{cc: cc}
}

func (c *ExtractionClient) ExtractEvents(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, extractEventsMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractDocument sends a whole document and returns the records it yields.
func (c *ExtractionClient) ExtractDocument(ctx context.Context, filename string, content []byte) ([]events.Record, error) {
	req, err := structpb.NewStruct(map[string]any{
		"filename": filename,
		"content":  base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.ExtractEvents(ctx, req)
	if err != nil {
		return nil, err
	}
	return RecordsFromStruct(resp), nil
}

// NewGRPCServer builds a server with the extraction and health services
// registered and every unary call logged.
func NewGRPCServer(svc ExtractionServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(unaryLogger(logger)))
	grpcServer := grpc.NewServer(opts...)
	grpcServer.RegisterService(&ExtractionServiceDesc, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	// Set the service as serving (empty string means overall server health)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ExtractionServiceName, healthpb.HealthCheckResponse_SERVING)
	return grpcServer, hs
}

func unaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(common.WithLogger(ctx, logger.With("method", info.FullMethod)), req)
		logger.Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
