package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/metrics"
	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/timeutil"
	"vendfleet-backend/internal/workflow"
)

// MaterialRequestService runs workflow commands. Every command is one store
// transaction: load with lock, guard, mutate, save, append history, enqueue
// event. Any error rolls the whole unit back.
type MaterialRequestService struct {
	Store MaterialRequestStore

	stats    StatsCache
	notifier EventNotifier
	now      func() time.Time
	newID    func() string
	log      *logger.Logger
}

func NewMaterialRequestService(store MaterialRequestStore, log *logger.Logger) *MaterialRequestService {
	return &MaterialRequestService{
		Store: store,
		now:   timeutil.Now,
		newID: uuid.NewString,
		log:   log.With("component", "material_request_service"),
	}
}

// SetStatsCache sets the cache invalidated after each successful command
func (s *MaterialRequestService) SetStatsCache(c StatsCache) {
	s.stats = c
}

// SetNotifier sets the outbox dispatcher woken after each commit
func (s *MaterialRequestService) SetNotifier(n EventNotifier) {
	s.notifier = n
}

// SetClock overrides the time source
func (s *MaterialRequestService) SetClock(now func() time.Time) {
	s.now = now
}

// mutation applies one command to a locked request inside the transaction.
type mutation func(ctx context.Context, tx MaterialRequestTx, r *models.MaterialRequest, now time.Time) error

// CreateMaterialRequest opens a new DRAFT with a freshly assigned request number.
func (s *MaterialRequestService) CreateMaterialRequest(ctx context.Context, actor models.Actor, req *models.CreateMaterialRequestRequest) (*models.MaterialRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, s.fail(workflow.CommandCreate, "", err)
	}
	if err := workflow.ValidatePriority(req.Priority); err != nil {
		return nil, s.fail(workflow.CommandCreate, "", err)
	}
	if err := workflow.ValidateItems(req.Items); err != nil {
		return nil, s.fail(workflow.CommandCreate, "", err)
	}

	now := s.now()
	var created *models.MaterialRequest
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx MaterialRequestTx) error {
		seq, err := tx.NextRequestSequence(ctx, timeutil.Year(now))
		if err != nil {
			return err
		}

		r := &models.MaterialRequest{
			ID:             s.newID(),
			OrganizationID: actor.OrganizationID,
			RequestNumber:  workflow.FormatRequestNumber(timeutil.Year(now), seq),
			RequesterID:    actor.UserID,
			Status:         models.StatusDraft,
			Priority:       req.Priority,
			Notes:          req.Notes,
			PaidAmount:     decimal.Zero,
			OverpaidAmount: decimal.Zero,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if r.Priority == "" {
			r.Priority = models.PriorityNormal
		}
		if req.SupplierID != nil {
			if sid := strings.TrimSpace(*req.SupplierID); sid != "" {
				r.SupplierID = &sid
			}
		}
		r.Items = workflow.BuildItems(r.ID, req.Items, s.newID)
		r.TotalAmount = workflow.RequestTotal(r.Items)

		if err := tx.Insert(ctx, r); err != nil {
			return err
		}
		if err := s.record(ctx, tx, r, workflow.CommandCreate, "", actor, "", now); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, s.fail(workflow.CommandCreate, "", err)
	}

	s.afterCommit(ctx, actor, workflow.CommandCreate, created)
	return created, nil
}

// UpdateMaterialRequest replaces mutable fields of a DRAFT.
func (s *MaterialRequestService) UpdateMaterialRequest(ctx context.Context, actor models.Actor, id string, req *models.UpdateMaterialRequestRequest) (*models.MaterialRequest, error) {
	if req.Priority != nil {
		if err := workflow.ValidatePriority(*req.Priority); err != nil {
			return nil, s.fail(workflow.CommandUpdate, id, err)
		}
	}
	if req.Items != nil {
		if err := workflow.ValidateItems(*req.Items); err != nil {
			return nil, s.fail(workflow.CommandUpdate, id, err)
		}
	}

	return s.transition(ctx, actor, id, workflow.CommandUpdate, nil, req.Items != nil,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, _ time.Time) error {
			return workflow.Update(r, req, s.newID)
		})
}

func (s *MaterialRequestService) Submit(ctx context.Context, actor models.Actor, id, comment string) (*models.MaterialRequest, error) {
	return s.transition(ctx, actor, id, workflow.CommandSubmit, &comment, false,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, now time.Time) error {
			return workflow.Submit(r, now)
		})
}

func (s *MaterialRequestService) Approve(ctx context.Context, actor models.Actor, id, comment string) (*models.MaterialRequest, error) {
	return s.transition(ctx, actor, id, workflow.CommandApprove, &comment, false,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, now time.Time) error {
			return workflow.Approve(r, actor.UserID, now)
		})
}

func (s *MaterialRequestService) Reject(ctx context.Context, actor models.Actor, id, reason string) (*models.MaterialRequest, error) {
	if err := workflow.ValidateReason("rejection", reason); err != nil {
		return nil, s.fail(workflow.CommandReject, id, err)
	}
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actor, id, workflow.CommandReject, &reason, false,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, now time.Time) error {
			return workflow.Reject(r, actor.UserID, reason, now)
		})
}

func (s *MaterialRequestService) ReturnToDraft(ctx context.Context, actor models.Actor, id, comment string) (*models.MaterialRequest, error) {
	return s.transition(ctx, actor, id, workflow.CommandReturnToDraft, &comment, false,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, _ time.Time) error {
			return workflow.ReturnToDraft(r)
		})
}

func (s *MaterialRequestService) SendToSupplier(ctx context.Context, actor models.Actor, id, comment string) (*models.MaterialRequest, error) {
	return s.transition(ctx, actor, id, workflow.CommandSendToSupplier, &comment, false,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, now time.Time) error {
			return workflow.SendToSupplier(r, now)
		})
}

// RecordPayment adds a supplier payment and writes it to the payment ledger.
// Amounts above the outstanding balance are accepted; the excess is kept in
// OverpaidAmount.
func (s *MaterialRequestService) RecordPayment(ctx context.Context, actor models.Actor, id string, req *models.RecordPaymentRequest) (*models.MaterialRequest, error) {
	if err := workflow.ValidatePaymentAmount(req.Amount); err != nil {
		return nil, s.fail(workflow.CommandRecordPayment, id, err)
	}

	var comment string
	return s.transition(ctx, actor, id, workflow.CommandRecordPayment, &comment, false,
		func(ctx context.Context, tx MaterialRequestTx, r *models.MaterialRequest, now time.Time) error {
			res, err := workflow.RecordPayment(r, req.Amount)
			if err != nil {
				return err
			}
			payment := &models.MaterialRequestPayment{
				ID:             s.newID(),
				RequestID:      r.ID,
				OrganizationID: r.OrganizationID,
				Amount:         req.Amount,
				AppliedAmount:  res.Applied,
				Reference:      strings.TrimSpace(req.Reference),
				Note:           req.Note,
				RecordedBy:     actor.UserID,
				RecordedAt:     now,
			}
			if err := tx.AppendPayment(ctx, payment); err != nil {
				return err
			}

			comment = fmt.Sprintf("payment of %s recorded", req.Amount.StringFixed(workflow.MoneyScale))
			if res.Excess.IsPositive() {
				comment += fmt.Sprintf(", overpaid by %s", res.Excess.StringFixed(workflow.MoneyScale))
			}
			if payment.Reference != "" {
				comment += " (ref " + payment.Reference + ")"
			}
			return nil
		})
}

func (s *MaterialRequestService) ConfirmDelivery(ctx context.Context, actor models.Actor, id string, req *models.ConfirmDeliveryRequest) (*models.MaterialRequest, error) {
	if err := workflow.ValidateDeliveries(req.Items); err != nil {
		return nil, s.fail(workflow.CommandConfirmDelivery, id, err)
	}
	comment := req.Comment
	return s.transition(ctx, actor, id, workflow.CommandConfirmDelivery, &comment, false,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, now time.Time) error {
			return workflow.ConfirmDelivery(r, req.Items, now)
		})
}

func (s *MaterialRequestService) Cancel(ctx context.Context, actor models.Actor, id, reason string) (*models.MaterialRequest, error) {
	if err := workflow.ValidateReason("cancellation", reason); err != nil {
		return nil, s.fail(workflow.CommandCancel, id, err)
	}
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actor, id, workflow.CommandCancel, &reason, false,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, now time.Time) error {
			return workflow.Cancel(r, reason, now)
		})
}

func (s *MaterialRequestService) Complete(ctx context.Context, actor models.Actor, id, comment string) (*models.MaterialRequest, error) {
	return s.transition(ctx, actor, id, workflow.CommandComplete, &comment, false,
		func(_ context.Context, _ MaterialRequestTx, r *models.MaterialRequest, now time.Time) error {
			return workflow.Complete(r, now)
		})
}

// DeleteMaterialRequest soft-deletes a DRAFT. It is not a status transition,
// so no history row is written, but a deleted event is still emitted.
func (s *MaterialRequestService) DeleteMaterialRequest(ctx context.Context, actor models.Actor, id string) error {
	if err := requireActor(actor); err != nil {
		return s.fail("delete", id, err)
	}

	now := s.now()
	var deleted *models.MaterialRequest
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx MaterialRequestTx) error {
		r, err := tx.FindForUpdate(ctx, actor.OrganizationID, id)
		if err != nil {
			return err
		}
		if r.Status != models.StatusDraft {
			return apperr.InvalidTransition("cannot delete material request %s in status %s", r.RequestNumber, r.Status)
		}
		if err := tx.SoftDelete(ctx, r, now); err != nil {
			return err
		}
		deleted = r
		return tx.EnqueueEvent(ctx, &models.MaterialRequestEvent{
			ID:             s.newID(),
			Name:           workflow.EventDeleted,
			RequestID:      r.ID,
			RequestNumber:  r.RequestNumber,
			OrganizationID: r.OrganizationID,
			FromStatus:     r.Status,
			ToStatus:       r.Status,
			ActorUserID:    actor.UserID,
			Timestamp:      now,
		})
	})
	if err != nil {
		return s.fail("delete", id, err)
	}

	s.log.Info("material request deleted",
		"request_id", deleted.ID, "request_number", deleted.RequestNumber, "organization_id", actor.OrganizationID)
	s.invalidate(ctx, actor.OrganizationID)
	return nil
}

// transition is the shared unit of work behind every command on an existing
// request. note, when non-nil, is read after mutate and stored as the history
// comment.
func (s *MaterialRequestService) transition(ctx context.Context, actor models.Actor, id string, cmd workflow.Command, note *string, replaceItems bool, mutate mutation) (*models.MaterialRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, s.fail(cmd, id, err)
	}

	now := s.now()
	var out *models.MaterialRequest
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx MaterialRequestTx) error {
		r, err := tx.FindForUpdate(ctx, actor.OrganizationID, id)
		if err != nil {
			return err
		}
		from := r.Status

		if err := mutate(ctx, tx, r, now); err != nil {
			return err
		}
		r.UpdatedAt = now
		if err := tx.Save(ctx, r, replaceItems); err != nil {
			return err
		}

		comment := ""
		if note != nil {
			comment = *note
		}
		if err := s.record(ctx, tx, r, cmd, from, actor, comment, now); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, s.fail(cmd, id, err)
	}

	s.afterCommit(ctx, actor, cmd, out)
	return out, nil
}

// record appends the history row and enqueues the event for one transition.
func (s *MaterialRequestService) record(ctx context.Context, tx MaterialRequestTx, r *models.MaterialRequest, cmd workflow.Command, from models.MaterialRequestStatus, actor models.Actor, comment string, now time.Time) error {
	h := &models.MaterialRequestHistory{
		ID:             s.newID(),
		RequestID:      r.ID,
		OrganizationID: r.OrganizationID,
		Command:        string(cmd),
		FromStatus:     from,
		ToStatus:       r.Status,
		UserID:         actor.UserID,
		Timestamp:      now,
	}
	if c := strings.TrimSpace(comment); c != "" {
		h.Comment = &c
	}
	if err := tx.AppendHistory(ctx, h); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	return tx.EnqueueEvent(ctx, &models.MaterialRequestEvent{
		ID:             s.newID(),
		Name:           workflow.EventName(cmd),
		RequestID:      r.ID,
		RequestNumber:  r.RequestNumber,
		OrganizationID: r.OrganizationID,
		FromStatus:     from,
		ToStatus:       r.Status,
		ActorUserID:    actor.UserID,
		Timestamp:      now,
	})
}

func (s *MaterialRequestService) afterCommit(ctx context.Context, actor models.Actor, cmd workflow.Command, r *models.MaterialRequest) {
	metrics.TransitionsTotal.WithLabelValues(string(cmd), string(r.Status)).Inc()
	s.log.Info("material request transition",
		"command", string(cmd),
		"request_id", r.ID,
		"request_number", r.RequestNumber,
		"status", string(r.Status),
		"organization_id", actor.OrganizationID,
		"actor", actor.UserID,
	)
	s.invalidate(ctx, actor.OrganizationID)
}

func (s *MaterialRequestService) invalidate(ctx context.Context, orgID string) {
	if s.stats != nil {
		s.stats.InvalidateStats(ctx, orgID)
	}
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

// fail records a failed command. Typed errors pass through unchanged;
// anything else is wrapped as internal.
func (s *MaterialRequestService) fail(cmd workflow.Command, id string, err error) error {
	kind := apperr.KindOf(err)
	metrics.CommandFailuresTotal.WithLabelValues(string(cmd), string(kind)).Inc()
	if kind == apperr.KindInternal {
		s.log.Error("material request command failed", "command", string(cmd), "request_id", id, "error", err)
		return apperr.Wrap(apperr.KindInternal, err, fmt.Sprintf("%s failed", cmd))
	}
	s.log.Debug("material request command rejected", "command", string(cmd), "request_id", id, "kind", string(kind), "error", err)
	return err
}

func requireActor(actor models.Actor) error {
	if actor.OrganizationID == "" || actor.UserID == "" {
		return apperr.Validation("organization and user are required")
	}
	return nil
}
