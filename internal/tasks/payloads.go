package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeFitRecompute = "fit:recompute"
)

// 重算任务的主体类型。
const (
	SubjectCandidate = "candidate"
	SubjectOffer     = "offer"
)

// FitRecomputePayload 描述一次匹配分重算所需的最小信息。
type FitRecomputePayload struct {
	Subject       string `json:"subject"`
	ID            uint   `json:"id"`
	CorrelationID string `json:"correlation_id"`
}

// NewFitRecomputeTask 构造一个新的匹配分重算任务。
func NewFitRecomputeTask(subject string, id uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(FitRecomputePayload{
		Subject:       subject,
		ID:            id,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFitRecompute, payload), nil
}
