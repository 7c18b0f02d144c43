package model

import (
	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/mutatorset"
)

type NotificationType int

const (
	NotificationTypeBlockAccepted NotificationType = iota
	NotificationTypeBlockDisconnected
)

func (t NotificationType) String() string {
	switch t {
	case NotificationTypeBlockAccepted:
		return "BlockAccepted"
	case NotificationTypeBlockDisconnected:
		return "BlockDisconnected"
	default:
		return "Unknown"
	}
}

// Notification is emitted for every block connected to or disconnected
// from the canonical chain. It carries the addition and removal records the
// block applied so that a wallet can reconcile balances for its tracked
// outputs; deciding which records are the wallet's is the wallet's job.
type Notification struct {
	Type            NotificationType
	Hash            digest.Digest
	Height          uint64
	AdditionRecords []mutatorset.AdditionRecord
	RemovalRecords  []*mutatorset.RemovalRecord
}
