package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/quietwire/mercury/internal/models"
)

// handleReceiptMessage applies delivery and read acknowledgements to
// the sender's outbound messages. Read receipts are honored only when
// the local user has them enabled.
func (d *Dispatcher) handleReceiptMessage(ctx context.Context, content *models.Content) error {
	receipt := content.Receipt
	address := d.masterAddress(content.Sender)
	now := time.Now().UnixMilli()

	switch receipt.Type {
	case models.ReceiptTypeDelivery:
		if err := d.store.IncrementDeliveryReceipts(ctx, address, receipt.Timestamps, now); err != nil {
			return storageFailed(err, content.Sender, content.SenderDevice)
		}

	case models.ReceiptTypeRead:
		if !d.prefs.ReadReceiptsEnabled() {
			log.Printf("dispatch: read receipts disabled, dropping receipt from %s", content.Sender)
			return nil
		}
		if err := d.store.IncrementReadReceipts(ctx, address, receipt.Timestamps, now); err != nil {
			return storageFailed(err, content.Sender, content.SenderDevice)
		}

	default:
		log.Printf("dispatch: unknown receipt type %d from %s", receipt.Type, content.Sender)
	}

	return nil
}
