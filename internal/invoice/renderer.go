// Package invoice renders single-page PDF invoices for created orders.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/imrishuroy/go-orderdesk/internal/orders"
)

// Renderer writes invoices into one directory, one file per order.
type Renderer struct {
	dir string
}

// NewRenderer creates a Renderer writing into dir.
func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// Path returns where the invoice for orderID is written.
func (r *Renderer) Path(orderID string) string {
	return filepath.Join(r.dir, orderID+".pdf")
}

// Render writes <dir>/<order_id>.pdf and returns its path. The directory is
// created if missing.
func (r *Renderer) Render(ctx context.Context, o orders.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if o.OrderID == "" {
		return "", errors.New("render invoice: order has no id")
	}
	// order ids are caller-suppliable; keep them from escaping the directory
	if filepath.Base(o.OrderID) != o.OrderID {
		return "", fmt.Errorf("render invoice: invalid order id %q", o.OrderID)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create invoice dir: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.CellFormat(0, 10, "Invoice", "", 1, "C", false, 0, "")
	for _, line := range []string{
		"Order ID: " + o.OrderID,
		"Customer Name: " + o.CustomerName,
		"Customer Email: " + o.CustomerEmail,
		"Item Name: " + o.ItemName,
		"Quantity: " + strconv.Itoa(o.Qty),
	} {
		pdf.CellFormat(0, 10, tr(line), "", 1, "L", false, 0, "")
	}

	path := r.Path(o.OrderID)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write invoice %s: %w", path, err)
	}
	return path, nil
}
