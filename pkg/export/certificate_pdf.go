package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument holds the fields printed on an issued certificate.
type CertificateDocument struct {
	SerialNumber string
	MemberName   string
	Title        string
	Body         string
	IssuedAt     time.Time
	Branch       string
}

// CertificatePDF renders issued certificates as landscape A4 documents.
type CertificatePDF struct{}

// NewCertificatePDF constructs a certificate renderer.
func NewCertificatePDF() *CertificatePDF {
	return &CertificatePDF{}
}

// Render produces the PDF bytes for a certificate document.
func (e *CertificatePDF) Render(doc CertificateDocument) ([]byte, error) {
	if doc.MemberName == "" || doc.Title == "" {
		return nil, fmt.Errorf("certificate requires member name and title")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Times", "B", 28)
	pdf.CellFormat(0, 18, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Times", "", 14)
	pdf.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Times", "B", 20)
	pdf.CellFormat(0, 12, doc.MemberName, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	if doc.Body != "" {
		pdf.SetFont("Times", "", 12)
		pdf.MultiCell(0, 7, doc.Body, "", "C", false)
		pdf.Ln(4)
	}

	pdf.SetFont("Times", "I", 10)
	issued := doc.IssuedAt
	if issued.IsZero() {
		issued = time.Now().UTC()
	}
	footer := fmt.Sprintf("Serial %s · Issued %s", doc.SerialNumber, issued.Format("2 January 2006"))
	if doc.Branch != "" {
		footer += " · " + doc.Branch
	}
	pdf.CellFormat(0, 8, footer, "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
