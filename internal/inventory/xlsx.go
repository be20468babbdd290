package inventory

import (
	"context"
	"io"
	"strconv"
	"strings"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const stockSheet = "Stock"

// StockRow is one line of an imported stock sheet.
type StockRow struct {
	Row      int // 1-based sheet row, for error reporting
	SKU      string
	Quantity int64
}

// ParseStockSheet reads SKU and quantity pairs from the first sheet. When
// the first row is a header naming "SKU" and "Quantity" those columns are
// used, so an exported sheet can be imported again; otherwise column A holds
// the SKU and column B the quantity.
func ParseStockSheet(r io.Reader) ([]StockRow, error) {
	const op = "import stock"

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation(op, "file is not a readable .xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation(op, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation(op, "sheet could not be read")
	}

	skuCol, qtyCol, start := 0, 1, 0
	if len(rows) > 0 && headerIndex(rows[0], "sku") >= 0 {
		skuCol = headerIndex(rows[0], "sku")
		qtyCol = headerIndex(rows[0], "quantity")
		if qtyCol < 0 {
			return nil, apperr.Validation(op, "header row has no Quantity column")
		}
		start = 1
	}

	out := make([]StockRow, 0, len(rows))
	for i := start; i < len(rows); i++ {
		row := rows[i]
		sku := cell(row, skuCol)
		if sku == "" {
			continue
		}

		fields := apperr.Fields{"row": i + 1, "sku": sku}
		raw := cell(row, qtyCol)
		if raw == "" {
			return nil, apperr.New(apperr.ErrValidation, op, "quantity is missing", fields)
		}
		qty, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperr.New(apperr.ErrValidation, op, "quantity is not a whole number", fields)
		}
		if qty < 0 {
			fields["quantity"] = qty
			return nil, apperr.New(apperr.ErrInvalidQuantity, op, "quantity must not be negative", fields)
		}
		out = append(out, StockRow{Row: i + 1, SKU: sku, Quantity: qty})
	}

	if len(out) == 0 {
		return nil, apperr.Validation(op, "sheet has no stock rows")
	}
	return out, nil
}

func headerIndex(row []string, name string) int {
	for i, c := range row {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// WriteStockSheet writes the stock lines of one warehouse as an .xlsx
// workbook.
func WriteStockSheet(w io.Writer, lines []StockLine) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", stockSheet); err != nil {
		return err
	}

	header := []any{"SKU", "Name", "Unit", "Batch", "Expiry", "Quantity"}
	if err := f.SetSheetRow(stockSheet, "A1", &header); err != nil {
		return err
	}
	for i, l := range lines {
		expiry := ""
		if l.ExpiryDate != nil {
			expiry = l.ExpiryDate.Format("2006-01-02")
		}
		row := []any{l.SKU, l.Name, l.Unit, l.BatchNumber, expiry, l.Quantity}

		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(stockSheet, ref, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

// ReceiveBatch books every row into warehouseID as one unit of work: an
// unknown SKU anywhere in the sheet rejects the whole batch.
func (c *Catalog) ReceiveBatch(ctx context.Context, actor authz.Actor, warehouseID uint, rows []StockRow) (int64, error) {
	if err := actor.Can(authz.WriteInventory); err != nil {
		return 0, err
	}

	var total int64
	err := c.store.WithinTx(ctx, "import stock", func(tx *gorm.DB) error {
		total = 0
		if err := requireWarehouse(tx, "import stock", warehouseID); err != nil {
			return err
		}

		items := make(map[string]*models.Item, len(rows))
		for _, r := range rows {
			item, ok := items[r.SKU]
			if !ok {
				var found []models.Item
				if err := tx.Where("sku = ?", r.SKU).Limit(1).Find(&found).Error; err != nil {
					return apperr.Storage("import stock", err)
				}
				if len(found) == 0 {
					return apperr.New(apperr.ErrNotFound, "import stock", "unknown sku", apperr.Fields{
						"row": r.Row,
						"sku": r.SKU,
					})
				}
				item = &found[0]
				items[r.SKU] = item
			}

			if err := c.receive(ctx, tx, actor, warehouseID, item, r.Quantity); err != nil {
				return err
			}
			total += r.Quantity
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
