package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/service"
)

// Worker consumes the job queue until its context ends.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisURL string, concurrency int, purger service.ScopePurger) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task", task.Type()).Msg("job failed")
		}),
		Logger: asynqLogger{},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeScopePurge, NewPurgeHandler(purger))

	return &Worker{server: srv, mux: mux}, nil
}

func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("starting job worker: %w", err)
	}
	log.Info().Msg("job worker started")

	<-ctx.Done()
	w.server.Shutdown()
	log.Info().Msg("job worker stopped")
	return nil
}

// asynqLogger routes asynq's own logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...any) { log.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...any)  { log.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...any)  { log.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...any) { log.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...any) { log.Fatal().Msg(fmt.Sprint(args...)) }
