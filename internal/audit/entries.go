package audit

import (
	"github.com/google/uuid"

	"github.com/nudgexfer/nudge/internal/transfer"
)

// FromSend builds a history entry for a completed (or failed) send.
// Code carries the passphrase, the one piece of information needed to
// look a transfer's peer back up later.
func FromSend(result *transfer.SendResult, sendErr error) LogEntry {
	entry := LogEntry{
		ID:     uuid.NewString(),
		Role:   "sender",
		Status: "success",
	}
	if sendErr != nil {
		entry.Status = "failed"
		entry.Error = sendErr.Error()
	}
	if result != nil {
		entry.FileName = result.FileName
		entry.FileSize = result.FileSize
		entry.FileHash = result.FileHash
		entry.Code = result.Passphrase
		entry.Duration = result.Duration.Seconds()
	}
	return entry
}

// FromReceive builds a history entry for a completed (or failed) receive.
func FromReceive(passphrase string, result *transfer.ReceiveResult, recvErr error) LogEntry {
	entry := LogEntry{
		ID:     uuid.NewString(),
		Role:   "receiver",
		Status: "success",
		Code:   passphrase,
	}
	if recvErr != nil {
		entry.Status = "failed"
		entry.Error = recvErr.Error()
	}
	if result != nil {
		entry.FileName = result.FileName
		entry.FileSize = result.FileSize
		entry.FileHash = result.FileHash
		entry.Duration = result.Duration.Seconds()
	}
	return entry
}
