// Package server exposes the trigger interfaces over gRPC as
// tickets.v1.TicketsService. Requests and responses are google.protobuf.Struct
// messages so the service needs no generated code.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/tickets-tracker/constants"
	"github.com/joseph-ayodele/tickets-tracker/internal/aggregate"
	"github.com/joseph-ayodele/tickets-tracker/internal/async"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/entity"
	"github.com/joseph-ayodele/tickets-tracker/internal/export"
	"github.com/joseph-ayodele/tickets-tracker/internal/pipeline"
	"github.com/joseph-ayodele/tickets-tracker/internal/repository"
)

const ServiceName = "tickets.v1.TicketsService"

const (
	MethodSubmitBatch       = "SubmitBatch"
	MethodGetBatch          = "GetBatch"
	MethodRequestValidation = "RequestValidation"
	MethodRequestExport     = "RequestExport"
	MethodGetExport         = "GetExport"
	MethodListAudit         = "ListAudit"
	MethodOverrideMatch     = "OverrideMatch"
)

// TicketsServer is the handler type of ServiceDesc.
type TicketsServer interface {
	SubmitBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestValidation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestExport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetExport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAudit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OverrideMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unary(name string, call func(TicketsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TicketsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(TicketsServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TicketsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSubmitBatch, TicketsServer.SubmitBatch),
		unary(MethodGetBatch, TicketsServer.GetBatch),
		unary(MethodRequestValidation, TicketsServer.RequestValidation),
		unary(MethodRequestExport, TicketsServer.RequestExport),
		unary(MethodGetExport, TicketsServer.GetExport),
		unary(MethodListAudit, TicketsServer.ListAudit),
		unary(MethodOverrideMatch, TicketsServer.OverrideMatch),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tickets/v1/tickets.proto",
}

// Submitter registers document pairs.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*entity.Batch, error)
}

// Exporter is satisfied by *export.Service.
type Exporter interface {
	Validate(ctx context.Context, req export.Request) (entity.Report, error)
	Export(ctx context.Context, req export.Request) (*export.Result, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.ExportRecord, error)
	History(ctx context.Context, id uuid.UUID) ([]repository.ExportTransition, error)
	Download(ctx context.Context, id uuid.UUID) (string, error)
	Audit(ctx context.Context, f repository.AuditFilter) ([]entity.AuditEntry, error)
}

type TicketsService struct {
	submitter Submitter
	queue     async.Queue
	batches   repository.BatchRepository
	tickets   repository.TicketRepository
	matches   repository.MatchRepository
	exports   Exporter
	logger    *slog.Logger
}

func NewTicketsService(
	submitter Submitter,
	queue async.Queue,
	batches repository.BatchRepository,
	tickets repository.TicketRepository,
	matches repository.MatchRepository,
	exports Exporter,
	logger *slog.Logger,
) *TicketsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketsService{
		submitter: submitter,
		queue:     queue,
		batches:   batches,
		tickets:   tickets,
		matches:   matches,
		exports:   exports,
		logger:    logger,
	}
}

// Register adds the service to a gRPC server.
func Register(s grpc.ServiceRegistrar, svc *TicketsService) {
	s.RegisterService(&ServiceDesc, svc)
}

func (s *TicketsService) SubmitBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sub := pipeline.Submission{
		SheetPath:            str(in, "sheet_path"),
		PDFPath:              str(in, "pdf_path"),
		ClientHint:           str(in, "client_hint"),
		AllowMismatchedNames: flag(in, "allow_mismatched_names"),
	}
	v := common.NewValidator().
		Field("sheet_path", sub.SheetPath, common.Required, common.Extension("xlsx", "xlsm", "csv")).
		Field("pdf_path", sub.PDFPath, common.Required, common.Extension("pdf")).
		Field("client_hint", sub.ClientHint, maxLen(128))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	b, err := s.submitter.Submit(ctx, sub)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	job := async.Job{
		BatchID:     b.ID,
		SubmittedAt: b.SubmittedAt,
		Identity:    common.IdentityFromContext(ctx),
		RequestID:   common.RequestIDFromContext(ctx),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error("batch enqueue failed", "batch_id", b.ID, "error", err)
		if errors.Is(err, async.ErrClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, common.ToStatus(err)
	}
	return toStruct(map[string]any{"batch_id": b.ID, "status": b.Status})
}

func (s *TicketsService) GetBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	batchID, err := id(in, "batch_id")
	if err != nil {
		return nil, err
	}
	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	out := map[string]any{"batch": b}
	if flag(in, "include_tickets") {
		t, err := s.tickets.ListByBatch(ctx, batchID)
		if err != nil {
			return nil, common.ToStatus(err)
		}
		out["tickets"] = t
	}
	if flag(in, "include_matches") {
		m, err := s.matches.Latest(ctx, batchID)
		if err != nil {
			return nil, common.ToStatus(err)
		}
		out["matches"] = m
	}
	return toStruct(out)
}

func request(in *structpb.Struct) (export.Request, error) {
	from, err := date(in, "from")
	if err != nil {
		return export.Request{}, err
	}
	to, err := date(in, "to")
	if err != nil {
		return export.Request{}, err
	}
	v := common.NewValidator().Field("client_id", str(in, "client_id"), maxLen(128))
	if err := common.ValidateAndReturnError(v); err != nil {
		return export.Request{}, err
	}
	return export.Request{
		From:          from,
		To:            to,
		Client:        str(in, "client_id"),
		Force:         flag(in, "force"),
		IncludeImages: flag(in, "include_images"),
	}, nil
}

func (s *TicketsService) RequestValidation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := request(in)
	if err != nil {
		return nil, err
	}
	report, err := s.exports.Validate(ctx, req)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(map[string]any{"report": report, "blocking": report.HasErrors()})
}

// RequestExport answers with the export's terminal state and report. A
// FAILED export is an answer too; its cause is in the error field.
func (s *TicketsService) RequestExport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := request(in)
	if err != nil {
		return nil, err
	}
	res, err := s.exports.Export(ctx, req)
	if res == nil {
		return nil, common.ToStatus(err)
	}
	out := map[string]any{
		"export_id":    res.ExportID,
		"state":        res.State,
		"downloadable": res.Downloadable(),
		"bundle_path":  res.BundlePath,
		"ticket_count": res.TicketCount,
		"total_amount": res.TotalAmount.StringFixed(aggregate.MoneyPlaces),
		"report":       res.Report,
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return toStruct(out)
}

// GetExport returns the registry entry and history. The bundle path is only
// handed out once the export is DOWNLOADABLE.
func (s *TicketsService) GetExport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	exportID, err := id(in, "export_id")
	if err != nil {
		return nil, err
	}
	rec, err := s.exports.Get(ctx, exportID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	hist, err := s.exports.History(ctx, exportID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	rec.BundlePath = ""
	downloadable := rec.State == constants.ExportDownload
	if downloadable {
		if rec.BundlePath, err = s.exports.Download(ctx, exportID); err != nil {
			return nil, common.ToStatus(err)
		}
	}
	return toStruct(map[string]any{"export": rec, "history": hist, "downloadable": downloadable})
}

func (s *TicketsService) ListAudit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var f repository.AuditFilter
	if str(in, "export_id") != "" {
		exportID, err := id(in, "export_id")
		if err != nil {
			return nil, err
		}
		f.ExportID = exportID
	}
	if o := str(in, "outcome"); o != "" {
		f.Outcome = constants.AuditOutcome(o)
	}
	limit, ok, err := integer(in, "limit")
	if err != nil {
		return nil, err
	}
	if ok {
		f.Limit = int(limit)
	}
	entries, err := s.exports.Audit(ctx, f)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	if entries == nil {
		entries = []entity.AuditEntry{}
	}
	return toStruct(map[string]any{"entries": entries})
}

// OverrideMatch records a reviewer's decision for one ticket. page_index -1
// clears the match.
func (s *TicketsService) OverrideMatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	batchID, err := id(in, "batch_id")
	if err != nil {
		return nil, err
	}
	num, ok, err := integer(in, "ticket_number")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.InvalidArgumentError("ticket_number is required")
	}
	page, ok, err := integer(in, "page_index")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.InvalidArgumentError("page_index is required")
	}
	who := common.IdentityFromContext(ctx)
	m, err := s.matches.Override(ctx, batchID, num, int(page), str(in, "image_key"), who.UserID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	s.logger.Info("match.override", "batch_id", batchID, "ticket", num, "page", page, "reviewer", who.UserID)
	return toStruct(map[string]any{"match": m})
}
