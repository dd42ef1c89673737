package helper

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

type HelperRepository struct {
	baseUrl *string
	WG      *sync.WaitGroup
	logger  *slog.Logger
}

func New(baseUrl *string, wg *sync.WaitGroup, logger *slog.Logger) *HelperRepository {
	return &HelperRepository{
		baseUrl: baseUrl,
		WG:      wg,
		logger:  logger,
	}
}

func (h *HelperRepository) NewEmailData() map[string]any {
	data := map[string]any{
		"BaseURL": *h.baseUrl,
	}

	return data
}

// BackgroundTask runs fn on its own goroutine, tracked by the
// application wait group so a graceful shutdown can drain it.
// A panic in fn never takes the process down.
func (h *HelperRepository) BackgroundTask(r *http.Request, fn func() error) {
	h.WG.Add(1)

	go func() {
		defer h.WG.Done()

		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("background task panic", "error", fmt.Errorf("%s", err))
			}
		}()

		if err := fn(); err != nil {
			h.logger.Error("background task failed", "error", err)
		}
	}()
}
