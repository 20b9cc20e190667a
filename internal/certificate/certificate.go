// Package certificate renders the PDF insurance certificate of a contract.
package certificate

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// Issuer is printed in the header and the document metadata.
const Issuer = "Assurance Portail"

var policyLabels = map[models.PolicyType]string{
	models.PolicyHealth:       "Santé",
	models.PolicyTravel:       "Voyage",
	models.PolicyAuto:         "Automobile",
	models.PolicyLiability:    "Responsabilité civile",
	models.PolicyHome:         "Habitation",
	models.PolicyProfessional: "Professionnelle",
	models.PolicyTransport:    "Transport",
}

var statusLabels = map[models.ContractStatus]string{
	models.ContractPendingPayment: "En attente de paiement",
	models.ContractActive:         "Actif",
	models.ContractExpired:        "Expiré",
	models.ContractArchived:       "Archivé",
	models.ContractCancelled:      "Résilié",
}

// Renderer builds certificates.
type Renderer struct {
	now func() time.Time
}

// New returns a renderer stamping documents with the current time.
func New() *Renderer { return &Renderer{now: time.Now} }

// Filename is the download name of a contract's certificate.
func Filename(c *models.Contract) string {
	return "attestation-" + c.PolicyNumber + ".pdf"
}

// Render writes the certificate of c, held by owner, to w.
func (r *Renderer) Render(w io.Writer, c *models.Contract, owner *models.User) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Attestation d'assurance "+c.PolicyNumber, true)
	pdf.SetAuthor(Issuer, true)
	pdf.SetCreator(Issuer, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, tr("Document généré le "+r.now().Format("02/01/2006 15:04")), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(20, 60, 120)
	pdf.CellFormat(0, 12, tr(Issuer), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, tr("Attestation d'assurance"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	section(pdf, tr, "Contrat")
	rows := [][2]string{
		{"Numéro de police", c.PolicyNumber},
		{"Assuré", owner.FullName()},
		{"Email", owner.Email},
		{"Type de contrat", label(c.PolicyType)},
		{"Période", "du " + c.StartDate.Format("02/01/2006") + " au " + c.EndDate.Format("02/01/2006")},
		{"Prime", strconv.FormatFloat(c.PremiumAmount, 'f', 2, 64) + " EUR"},
		{"Statut", statusLabel(c.Status)},
	}
	table(pdf, tr, rows)

	section(pdf, tr, "Garanties")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 6, tr(c.CoverageDetails), "", "L", false)
	pdf.Ln(2)

	if c.Details != nil {
		if details := c.Details.Rows(); len(details) > 0 {
			section(pdf, tr, "Détails")
			table(pdf, tr, details)
		}
	}

	if c.Signature != "" {
		if err := signature(pdf, tr, c.Signature); err != nil {
			return fmt.Errorf("signature: %w", err)
		}
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func section(pdf *fpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetFillColor(230, 236, 245)
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", true, 0, "")
	pdf.Ln(1)
}

func table(pdf *fpdf.Fpdf, tr func(string) string, rows [][2]string) {
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(55, 7, tr(row[0]), "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 7, tr(row[1]), "B", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
}

func signature(pdf *fpdf.Fpdf, tr func(string) string, encoded string) error {
	raw, typ, err := DecodeImage(encoded)
	if err != nil {
		return err
	}
	section(pdf, tr, "Signature")
	opts := fpdf.ImageOptions{ImageType: typ, ReadDpi: true}
	pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(raw))
	pdf.ImageOptions("signature", pdf.GetX(), pdf.GetY(), 60, 0, true, opts, 0, "")
	return nil
}

// DecodeImage decodes a base64 PNG or JPEG, with or without a data URL
// prefix, and returns the fpdf image type.
func DecodeImage(encoded string) ([]byte, string, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i > 0 {
		encoded = encoded[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	switch http.DetectContentType(raw) {
	case "image/png":
		return raw, "PNG", nil
	case "image/jpeg":
		return raw, "JPG", nil
	}
	return nil, "", errors.New("signature must be a PNG or JPEG image")
}

func label(p models.PolicyType) string {
	if l, ok := policyLabels[p]; ok {
		return l
	}
	return string(p)
}

func statusLabel(s models.ContractStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}
