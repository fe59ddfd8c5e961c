package item

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/printforge/preflight/internal/model"
)

type service interface {
	Process(ctx context.Context, job model.Job) error
}

type UploadedHandler struct {
	service service
}

func NewUploadedHandler(s service) *UploadedHandler {
	return &UploadedHandler{service: s}
}

func (h *UploadedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var job model.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}

	err := h.service.Process(ctx, job)
	if err != nil {
		return fmt.Errorf("process job: %w", err)
	}

	return nil
}
