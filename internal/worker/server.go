package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"campus-chat/internal/repository"
	"campus-chat/internal/service"
	"campus-chat/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server          *asynq.Server
	log             *logrus.Entry
	searchRepo      repository.SearchRepository
	msgRepo         repository.MessageRepository
	presenceService *service.PresenceService
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(
	redisOpt asynq.RedisClientOpt,
	searchRepo repository.SearchRepository,
	msgRepo repository.MessageRepository,
	presenceService *service.PresenceService,
	logger *logrus.Logger,
) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{
		server:          server,
		log:             logEntry,
		searchRepo:      searchRepo,
		msgRepo:         msgRepo,
		presenceService: presenceService,
	}
}

// Start 运行 Worker Server。应在单独的 goroutine 中调用。
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()

	indexHandler := NewSearchIndexHandler(ws.searchRepo)
	mux.HandleFunc(tasks.TypeMessageIndex, indexHandler.ProcessIndex)
	mux.HandleFunc(tasks.TypeMessageRemove, indexHandler.ProcessRemove)

	rebuildHandler := NewSearchRebuildHandler(ws.searchRepo, ws.msgRepo)
	mux.HandleFunc(tasks.TypeSearchRebuild, rebuildHandler.ProcessTask)

	sweepHandler := NewPresenceSweepHandler(ws.presenceService)
	mux.HandleFunc(tasks.TypePresenceSweep, sweepHandler.ProcessTask)

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
