package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/tickets-tracker/internal/app"
	"github.com/joseph-ayodele/tickets-tracker/internal/async"
	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/ingest"
	"github.com/joseph-ayodele/tickets-tracker/internal/repository"
	"github.com/joseph-ayodele/tickets-tracker/internal/server"
)

func main() {
	clientsFile := flag.String("clients", "", "optional JSON file of clients to import at startup")
	flag.Parse()

	cfg := common.LoadConfig()
	logger := app.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg, false, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", cfg.Database.Driver)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	a, err := app.New(cfg, db, logger)
	if err != nil {
		logger.Error("failed to wire components", "error", err)
		os.Exit(1)
	}
	if *clientsFile != "" {
		n, err := a.ImportClients(ctx, *clientsFile)
		if err != nil {
			logger.Error("failed to import clients", "file", *clientsFile, "error", err)
			os.Exit(1)
		}
		logger.Info("clients imported", "file", *clientsFile, "count", n)
	}

	queue := async.NewBatchQueue(a.Processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.Timeout),
	)

	if cfg.Inbox.Dir != "" {
		submit := func(ctx context.Context, p ingest.Pair) error {
			b, err := a.Processor.Submit(ctx, p.Submission())
			if err != nil {
				return err
			}
			return queue.Enqueue(ctx, async.Job{
				BatchID:     b.ID,
				SubmittedAt: b.SubmittedAt,
				Identity:    common.SystemIdentity,
			})
		}
		w := ingest.NewWatcher(ingest.WatchConfig{Root: cfg.Inbox.Dir, Debounce: cfg.Inbox.Debounce}, submit, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("inbox watcher failed", "dir", cfg.Inbox.Dir, "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(server.UnaryInterceptor(logger)))

	svc := server.NewTicketsService(a.Processor, queue, a.Batches, a.Tickets, a.Matches, a.Exporter, logger)
	server.Register(grpcServer, svc)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	logger.Info("ticketsd listening", "addr", cfg.Server.GRPCAddr)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	drain, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(drain)
}
