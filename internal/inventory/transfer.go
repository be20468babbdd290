package inventory

import (
	"context"
	"fmt"
	"unicode/utf8"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/audit"
	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Column width of Transfer.Notes, in characters.
const maxTransferNotesLen = 255

type TransferRequest struct {
	SourceWarehouseID uint   `json:"source_warehouse_id"`
	DestWarehouseID   uint   `json:"destination_warehouse_id"`
	ItemID            uint   `json:"item_id"`
	Quantity          int64  `json:"quantity"`
	Notes             string `json:"notes"`
}

type TransferService struct {
	store *Store
	log   *zap.Logger
}

func NewTransferService(store *Store, log *zap.Logger) *TransferService {
	return &TransferService{store: store, log: log}
}

// Transfer moves quantity units of an item from one warehouse to another.
// Debit, credit, audit record and transfer row commit together or not at
// all. On rejection the returned transfer carries status "rejected" and is
// not persisted.
func (s *TransferService) Transfer(ctx context.Context, actor authz.Actor, req TransferRequest) (*models.Transfer, error) {
	transfer := &models.Transfer{
		Reference:         uuid.NewString(),
		SourceWarehouseID: req.SourceWarehouseID,
		DestWarehouseID:   req.DestWarehouseID,
		ItemID:            req.ItemID,
		Quantity:          req.Quantity,
		UserID:            actor.UserID,
		Status:            models.TransferRejected,
		Notes:             req.Notes,
	}

	if err := s.validate(actor, req); err != nil {
		s.rejected(transfer, err)
		return transfer, err
	}

	err := s.store.WithinTx(ctx, "transfer", func(tx *gorm.DB) error {
		// Retries reuse the same value; start from a clean row each attempt.
		transfer.ID = 0
		transfer.Status = models.TransferRejected
		return s.apply(ctx, tx, actor, req, transfer)
	})
	if err != nil {
		transfer.ID = 0
		transfer.Status = models.TransferRejected
		s.rejected(transfer, err)
		return transfer, err
	}

	s.log.Info("transfer committed",
		zap.String("reference", transfer.Reference),
		zap.Uint("source_warehouse_id", transfer.SourceWarehouseID),
		zap.Uint("dest_warehouse_id", transfer.DestWarehouseID),
		zap.Uint("item_id", transfer.ItemID),
		zap.Int64("quantity", transfer.Quantity),
		zap.Uint("user_id", actor.UserID),
	)
	return transfer, nil
}

func (s *TransferService) validate(actor authz.Actor, req TransferRequest) error {
	if err := actor.Can(authz.TransferItems); err != nil {
		return err
	}
	if req.Quantity <= 0 {
		return apperr.New(apperr.ErrInvalidQuantity, "transfer", "quantity must be positive", apperr.Fields{
			"quantity": req.Quantity,
		})
	}
	if req.SourceWarehouseID == req.DestWarehouseID {
		return apperr.New(apperr.ErrSameWarehouse, "transfer", "", apperr.Fields{
			"warehouse_id": req.SourceWarehouseID,
		})
	}
	if n := utf8.RuneCountInString(req.Notes); n > maxTransferNotesLen {
		return apperr.New(apperr.ErrValidation, "transfer", "notes too long", apperr.Fields{
			"length":     n,
			"max_length": maxTransferNotesLen,
		})
	}
	return nil
}

func (s *TransferService) apply(ctx context.Context, tx *gorm.DB, actor authz.Actor, req TransferRequest, transfer *models.Transfer) error {
	item, err := lockOwners(tx, "transfer", req.ItemID, req.SourceWarehouseID, req.DestWarehouseID)
	if err != nil {
		return err
	}

	before, err := lockEntries(tx, req.ItemID, req.SourceWarehouseID, req.DestWarehouseID)
	if err != nil {
		return apperr.Storage("transfer", err)
	}

	// Debited
	srcAfter, err := s.store.AdjustStock(ctx, tx, req.SourceWarehouseID, req.ItemID, -req.Quantity)
	if err != nil {
		return err
	}
	// Credited
	dstAfter, err := s.store.AdjustStock(ctx, tx, req.DestWarehouseID, req.ItemID, req.Quantity)
	if err != nil {
		return err
	}

	transfer.Status = models.TransferCommitted
	if err := tx.Create(transfer).Error; err != nil {
		return apperr.Storage("transfer", err)
	}

	// AuditLogged
	qty := req.Quantity
	_, err = audit.WriteLog(tx, audit.LogOptions{
		Actor:             actor,
		EntityType:        "transfer",
		EntityID:          transfer.ID,
		Action:            models.AuditActionTransfer,
		ItemID:            &req.ItemID,
		SourceWarehouseID: &req.SourceWarehouseID,
		DestWarehouseID:   &req.DestWarehouseID,
		Quantity:          &qty,
		Description:       transferDescription(item, req, transfer.Notes),
		Before: []models.StockLevel{
			{WarehouseID: req.SourceWarehouseID, ItemID: req.ItemID, Quantity: before[req.SourceWarehouseID]},
			{WarehouseID: req.DestWarehouseID, ItemID: req.ItemID, Quantity: before[req.DestWarehouseID]},
		},
		After: []models.StockLevel{
			{WarehouseID: req.SourceWarehouseID, ItemID: req.ItemID, Quantity: srcAfter},
			{WarehouseID: req.DestWarehouseID, ItemID: req.ItemID, Quantity: dstAfter},
		},
	})
	return err
}

func transferDescription(item *models.Item, req TransferRequest, notes string) string {
	desc := fmt.Sprintf("Transferred %d %s of %s from warehouse %d to %d",
		req.Quantity, item.Unit, item.SKU, req.SourceWarehouseID, req.DestWarehouseID)
	if notes != "" {
		desc += ": " + notes
	}
	// WriteLog clips it to the column width.
	return desc
}

func (s *TransferService) rejected(t *models.Transfer, err error) {
	s.log.Warn("transfer rejected",
		zap.String("reference", t.Reference),
		zap.String("kind", apperr.KindName(err)),
		zap.Uint("source_warehouse_id", t.SourceWarehouseID),
		zap.Uint("dest_warehouse_id", t.DestWarehouseID),
		zap.Uint("item_id", t.ItemID),
		zap.Int64("quantity", t.Quantity),
		zap.Error(err),
	)
}

// ListTransfers returns committed transfers, newest first.
func (s *TransferService) ListTransfers(ctx context.Context, warehouseID, itemID uint) ([]models.Transfer, error) {
	dbq := s.store.DB().WithContext(ctx).Model(&models.Transfer{})
	if warehouseID != 0 {
		dbq = dbq.Where("(source_warehouse_id = ? OR dest_warehouse_id = ?)", warehouseID, warehouseID)
	}
	if itemID != 0 {
		dbq = dbq.Where("item_id = ?", itemID)
	}

	transfers := make([]models.Transfer, 0)
	if err := dbq.Order("created_at DESC, id DESC").Find(&transfers).Error; err != nil {
		return nil, apperr.Storage("list transfers", err)
	}
	return transfers, nil
}

func (s *TransferService) GetTransfer(ctx context.Context, id uint) (*models.Transfer, error) {
	var transfers []models.Transfer
	if err := s.store.DB().WithContext(ctx).Where("id = ?", id).Limit(1).Find(&transfers).Error; err != nil {
		return nil, apperr.Storage("get transfer", err)
	}
	if len(transfers) == 0 {
		return nil, apperr.NotFound("get transfer", "transfer", id)
	}
	return &transfers[0], nil
}
