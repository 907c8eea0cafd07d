package services

import (
	"context"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/documents"
	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/models"
)

// OrderSheetArchiver stores rendered order sheets outside the database.
type OrderSheetArchiver interface {
	ArchiveOrderSheet(ctx context.Context, orgID, requestNumber string, pdf []byte) (string, error)
}

// OrderSheetService renders supplier order sheets, optionally archiving a copy
// in the object store.
type OrderSheetService struct {
	Store    MaterialRequestStore
	archiver OrderSheetArchiver
	log      *logger.Logger
}

func NewOrderSheetService(store MaterialRequestStore, log *logger.Logger) *OrderSheetService {
	if log == nil {
		log = logger.Nop()
	}
	return &OrderSheetService{Store: store, log: log}
}

func (s *OrderSheetService) SetArchiver(a OrderSheetArchiver) {
	s.archiver = a
}

// OrderSheet is a rendered PDF plus the archive key, when one was written.
type OrderSheet struct {
	RequestNumber string
	PDF           []byte
	ArchiveKey    string
}

// Render builds the order sheet of a request in any status.
func (s *OrderSheetService) Render(ctx context.Context, actor models.Actor, id string, archive bool) (*OrderSheet, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	r, err := s.Store.Get(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.Store.Payments(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}

	pdf, err := documents.RenderOrderSheet(r, payments)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "render order sheet")
	}
	sheet := &OrderSheet{RequestNumber: r.RequestNumber, PDF: pdf}

	if archive && s.archiver != nil {
		key, err := s.archiver.ArchiveOrderSheet(ctx, actor.OrganizationID, r.RequestNumber, pdf)
		if err != nil {
			// The sheet is still returned; archiving is best effort.
			s.log.Warn("order sheet archive failed", "request_number", r.RequestNumber, "error", err)
		} else {
			sheet.ArchiveKey = key
		}
	}
	return sheet, nil
}
