package worker

import (
	"context"

	"github.com/cradoe/kudi/internal/helper"
	"github.com/cradoe/kudi/internal/repository"
	"github.com/cradoe/kudi/internal/smtp"
	"github.com/cradoe/kudi/internal/stream"
)

type Worker struct {
	KafkaStream  *stream.KafkaStream
	UserRepo     repository.UserRepository
	WalletRepo   repository.WalletRepository
	ActivityRepo repository.ActivityRepository
	Mailer       smtp.MailerInterface
	Ctx          context.Context
	Helper       *helper.HelperRepository
}

const (
	// transferCompletedGroupID is used for workers that take action after a transfer has been committed
	transferCompletedGroupID = "transfer-completed-group"
)

// Our workers typically need access to the repositories and the kafka
// event stream; worker-specific dependencies can be passed as argument
// to the worker
func New(wk *Worker) *Worker {
	return &Worker{
		KafkaStream:  wk.KafkaStream,
		UserRepo:     wk.UserRepo,
		WalletRepo:   wk.WalletRepo,
		ActivityRepo: wk.ActivityRepo,
		Mailer:       wk.Mailer,
		Ctx:          wk.Ctx,
		Helper:       wk.Helper,
	}
}
