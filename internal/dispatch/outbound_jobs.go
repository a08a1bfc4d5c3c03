package dispatch

import (
	"context"
	"encoding/hex"
	"log"

	"github.com/quietwire/mercury/internal/jobs"
	"github.com/quietwire/mercury/internal/transport"
)

// Factory keys for the outbound side-effect jobs spawned by inbound
// handling.
const (
	ReceiptJobKey          = "SendDeliveryReceipt"
	GroupInfoRequestJobKey = "GroupInfoRequest"
)

const (
	outboundMaxAttempts = 8

	keyRecipient = "recipient"
	keyTimestamp = "timestamp"
	keyGroupID   = "group_id"
)

// SendDeliveryReceiptJob acknowledges receipt of one message back to
// its sender.
type SendDeliveryReceiptJob struct {
	sender Sender

	Recipient string
	Timestamp int64
}

// NewSendDeliveryReceiptJob creates a delivery receipt job.
func NewSendDeliveryReceiptJob(sender Sender, recipient string, timestamp int64) *SendDeliveryReceiptJob {
	return &SendDeliveryReceiptJob{sender: sender, Recipient: recipient, Timestamp: timestamp}
}

// ReceiptJobFromData reconstructs a delivery receipt job from its
// persisted record.
func ReceiptJobFromData(sender Sender, data jobs.Data) (jobs.Job, error) {
	return NewSendDeliveryReceiptJob(sender, data.String(keyRecipient), data.Long(keyTimestamp)), nil
}

func (j *SendDeliveryReceiptJob) FactoryKey() string { return ReceiptJobKey }

// QueueKey serializes receipts per recipient so they arrive in order.
func (j *SendDeliveryReceiptJob) QueueKey() string { return ReceiptJobKey + "-" + j.Recipient }

func (j *SendDeliveryReceiptJob) MaxAttempts() int { return outboundMaxAttempts }

func (j *SendDeliveryReceiptJob) Serialize() jobs.Data {
	return jobs.Data{
		keyRecipient: j.Recipient,
		keyTimestamp: j.Timestamp,
	}
}

func (j *SendDeliveryReceiptJob) OnAdded(ctx context.Context) error { return nil }

func (j *SendDeliveryReceiptJob) Run(ctx context.Context) error {
	return j.sender.SendDeliveryReceipt(ctx, j.Recipient, j.Timestamp)
}

func (j *SendDeliveryReceiptJob) ShouldRetry(err error) bool {
	return transport.IsNetworkError(err)
}

func (j *SendDeliveryReceiptJob) OnCanceled(ctx context.Context) {
	log.Printf("dispatch: giving up on delivery receipt to %s for %d", j.Recipient, j.Timestamp)
}

// GroupInfoRequestJob asks a group message's sender for the group's
// current state after a message for an unknown group arrived.
type GroupInfoRequestJob struct {
	sender Sender

	Recipient string
	GroupID   []byte
}

// NewGroupInfoRequestJob creates a group info request job.
func NewGroupInfoRequestJob(sender Sender, recipient string, groupID []byte) *GroupInfoRequestJob {
	return &GroupInfoRequestJob{sender: sender, Recipient: recipient, GroupID: groupID}
}

// GroupInfoRequestJobFromData reconstructs a group info request job
// from its persisted record.
func GroupInfoRequestJobFromData(sender Sender, data jobs.Data) (jobs.Job, error) {
	groupID, err := hex.DecodeString(data.String(keyGroupID))
	if err != nil {
		return nil, err
	}
	return NewGroupInfoRequestJob(sender, data.String(keyRecipient), groupID), nil
}

func (j *GroupInfoRequestJob) FactoryKey() string { return GroupInfoRequestJobKey }

func (j *GroupInfoRequestJob) QueueKey() string {
	return GroupInfoRequestJobKey + "-" + hex.EncodeToString(j.GroupID)
}

func (j *GroupInfoRequestJob) MaxAttempts() int { return outboundMaxAttempts }

func (j *GroupInfoRequestJob) Serialize() jobs.Data {
	return jobs.Data{
		keyRecipient: j.Recipient,
		keyGroupID:   hex.EncodeToString(j.GroupID),
	}
}

func (j *GroupInfoRequestJob) OnAdded(ctx context.Context) error { return nil }

func (j *GroupInfoRequestJob) Run(ctx context.Context) error {
	return j.sender.RequestGroupInfo(ctx, j.Recipient, j.GroupID)
}

func (j *GroupInfoRequestJob) ShouldRetry(err error) bool {
	return transport.IsNetworkError(err)
}

func (j *GroupInfoRequestJob) OnCanceled(ctx context.Context) {
	log.Printf("dispatch: giving up on group info request to %s", j.Recipient)
}
