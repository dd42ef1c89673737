// Committed transfers are announced on the transaction.completed
// topic. This worker picks them up, records the recipient-side audit
// entry and emails debit/credit alerts to both parties. Everything
// here is best-effort: the transfer itself committed long before this
// code runs.
package worker

import (
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/cradoe/kudi/internal/funcs"
	"github.com/cradoe/kudi/internal/handler"
	"github.com/cradoe/kudi/internal/models"
	"github.com/cradoe/kudi/internal/repository"
	"github.com/cradoe/kudi/internal/stream"
)

func (wk *Worker) NotificationWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: transferCompletedGroupID,
		Topic:   handler.TransferCompletedTopic,
	})

	if err != nil {
		log.Fatalf("Error creating consumer: %v", err)
	}
	defer consumer.Close()

	for {
		select {
		case <-wk.Ctx.Done():
			log.Println("NotificationWorker received cancellation signal, shutting down...")
			return
		default:
			event := consumer.Poll(100) // Poll every 100ms
			switch e := event.(type) {
			case *kafka.Message:
				var transferEvent handler.CompletedTransferEvent
				if err := json.Unmarshal(e.Value, &transferEvent); err != nil {
					log.Printf("Error decoding transfer event: %v", err)
					continue
				}

				wk.recordRecipientActivity(&transferEvent)
				wk.sendTransactionAlerts(&transferEvent)
			case kafka.Error:
				log.Printf("Error: %v\n", e)
			default:
				// Handle other events if needed
			}
		}
	}
}

func (wk *Worker) recordRecipientActivity(event *handler.CompletedTransferEvent) {
	recipientWallet, found, err := wk.WalletRepo.GetOne(event.ToWalletID)
	if err != nil || !found {
		log.Printf("Error finding recipient wallet for activity log: %v", err)
		return
	}

	_, err = wk.ActivityRepo.Insert(&models.ActivityLog{
		UserID:      recipientWallet.UserID,
		Entity:      repository.ActivityLogTransactionEntity,
		EntityID:    event.TransactionID,
		Description: handler.TransactionActivityLogTransferDescription,
	})
	if err != nil {
		log.Printf("Error logging recipient credit action: %v", err)
	}
}

func (wk *Worker) sendTransactionAlerts(event *handler.CompletedTransferEvent) {
	sender, found, err := wk.UserRepo.GetOne(event.SenderID)
	if err != nil || !found {
		log.Printf("Error finding sender's account for debit alert: %v", err)
		return
	}

	senderWallet, found, err := wk.WalletRepo.GetOne(event.FromWalletID)
	if err != nil || !found {
		log.Printf("Error finding sender's wallet for debit alert: %v", err)
		return
	}

	recipientWallet, found, err := wk.WalletRepo.GetOne(event.ToWalletID)
	if err != nil || !found {
		log.Printf("Error finding recipient's wallet for credit alert: %v", err)
		return
	}

	recipient, found, err := wk.UserRepo.GetOne(recipientWallet.UserID)
	if err != nil || !found {
		log.Printf("Error finding recipient's account for credit alert: %v", err)
		return
	}

	// debit alert to sender
	wk.Helper.BackgroundTask(nil, func() error {
		emailData := wk.Helper.NewEmailData()
		emailData["Username"] = sender.Username
		emailData["Amount"] = funcs.FormatAmount(event.Amount)
		emailData["RecipientUsername"] = recipient.Username
		emailData["WalletName"] = senderWallet.Name
		emailData["TransactionID"] = event.TransactionID
		emailData["NewBalance"] = funcs.FormatAmount(senderWallet.Balance)

		err := wk.Mailer.Send(sender.Email, emailData, "debit-alert.tmpl")
		if err != nil {
			log.Printf("Error sending debit email alert: %v", err)
			return err
		}

		return nil
	})

	// credit alert to recipient
	wk.Helper.BackgroundTask(nil, func() error {
		emailData := wk.Helper.NewEmailData()
		emailData["Username"] = recipient.Username
		emailData["Amount"] = funcs.FormatAmount(event.Amount)
		emailData["SenderUsername"] = sender.Username
		emailData["WalletName"] = recipientWallet.Name
		emailData["TransactionID"] = event.TransactionID
		emailData["NewBalance"] = funcs.FormatAmount(recipientWallet.Balance)

		err := wk.Mailer.Send(recipient.Email, emailData, "credit-alert.tmpl")
		if err != nil {
			log.Printf("Error sending credit email alert: %v", err)
			return err
		}

		return nil
	})
}
