// Package workflow holds the material request lifecycle: the closed transition
// table, command guards, and the financial calculations applied by each
// transition. Everything here is pure; persistence lives in the services layer.
package workflow

import (
	"strings"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/models"
)

// Command is an inbound operation against a material request.
type Command string

const (
	CommandCreate          Command = "create"
	CommandUpdate          Command = "update"
	CommandSubmit          Command = "submit"
	CommandApprove         Command = "approve"
	CommandReject          Command = "reject"
	CommandReturnToDraft   Command = "returnToDraft"
	CommandSendToSupplier  Command = "sendToSupplier"
	CommandRecordPayment   Command = "recordPayment"
	CommandConfirmDelivery Command = "confirmDelivery"
	CommandCancel          Command = "cancel"
	CommandComplete        Command = "complete"
)

// AllCommands lists every command that operates on an existing request.
var AllCommands = []Command{
	CommandUpdate, CommandSubmit, CommandApprove, CommandReject, CommandReturnToDraft,
	CommandSendToSupplier, CommandRecordPayment, CommandConfirmDelivery, CommandCancel, CommandComplete,
}

// validFrom is the transition table: command -> statuses it may be issued from.
var validFrom = map[Command][]models.MaterialRequestStatus{
	CommandUpdate:          {models.StatusDraft},
	CommandSubmit:          {models.StatusDraft},
	CommandApprove:         {models.StatusNew},
	CommandReject:          {models.StatusNew},
	CommandReturnToDraft:   {models.StatusRejected},
	CommandSendToSupplier:  {models.StatusApproved},
	CommandRecordPayment:   {models.StatusSent, models.StatusPartiallyPaid},
	CommandConfirmDelivery: {models.StatusPaid},
	CommandComplete:        {models.StatusDelivered},
	CommandCancel: {
		models.StatusDraft, models.StatusNew, models.StatusApproved, models.StatusRejected,
		models.StatusSent, models.StatusPaid, models.StatusPartiallyPaid, models.StatusDelivered,
	},
}

var eventVerbs = map[Command]string{
	CommandCreate:          "created",
	CommandUpdate:          "updated",
	CommandSubmit:          "submitted",
	CommandApprove:         "approved",
	CommandReject:          "rejected",
	CommandReturnToDraft:   "returned-to-draft",
	CommandSendToSupplier:  "sent",
	CommandRecordPayment:   "payment-recorded",
	CommandConfirmDelivery: "delivered",
	CommandCancel:          "cancelled",
	CommandComplete:        "completed",
}

// EventDeleted is emitted when a draft is deleted. Deletion is not a status
// transition and writes no history row.
const EventDeleted = "material-request.deleted"

// CanApply reports whether cmd may be issued against a request in status from.
func CanApply(cmd Command, from models.MaterialRequestStatus) bool {
	for _, s := range validFrom[cmd] {
		if s == from {
			return true
		}
	}
	return false
}

// ValidFrom returns the statuses cmd may be issued from.
func ValidFrom(cmd Command) []models.MaterialRequestStatus {
	out := make([]models.MaterialRequestStatus, len(validFrom[cmd]))
	copy(out, validFrom[cmd])
	return out
}

// EventName is the outbound event name for a successful command.
func EventName(cmd Command) string {
	return "material-request." + eventVerbs[cmd]
}

// checkState is the status half of every guard.
func checkState(cmd Command, r *models.MaterialRequest) error {
	if CanApply(cmd, r.Status) {
		return nil
	}
	if r.Status.IsTerminal() {
		return apperr.InvalidTransition("material request %s is %s and can no longer change", r.RequestNumber, r.Status)
	}
	from := ValidFrom(cmd)
	names := make([]string, len(from))
	for i, s := range from {
		names[i] = string(s)
	}
	return apperr.InvalidTransition("cannot %s material request %s in status %s, requires %s",
		cmd, r.RequestNumber, r.Status, strings.Join(names, " or "))
}
