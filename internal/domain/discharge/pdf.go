package discharge

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// RenderPDF lays out the bill on a single A4 page.
func RenderPDF(d *Details) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle(fmt.Sprintf("Discharge bill %s", d.ID), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Hospital Management - Discharge Bill", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, "Bill no. "+d.ID.String(), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Patient")
	row(pdf, "Name", d.PatientName, false)
	row(pdf, "Mobile", d.Mobile, false)
	row(pdf, "Address", d.Address, false)
	row(pdf, "Symptoms", d.Symptoms, false)
	row(pdf, "Doctor", d.AssignedDoctorName, false)
	row(pdf, "Admitted", d.AdmitDate.Format("2006-01-02"), false)
	row(pdf, "Released", d.ReleaseDate.Format("2006-01-02"), false)
	row(pdf, "Days spent", fmt.Sprintf("%d", d.DaySpent), false)
	pdf.Ln(4)

	section(pdf, "Charges")
	row(pdf, "Room charge", amount(d.RoomCharge), false)
	row(pdf, "Doctor fee", amount(d.DoctorFee), false)
	row(pdf, "Medicine cost", amount(d.MedicineCost), false)
	row(pdf, "Other charge", amount(d.OtherCharge), false)
	row(pdf, "Total", amount(d.Total), true)

	pdf.SetY(pdf.GetY() + 12)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 10, "This is a computer generated bill", "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render discharge pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 10, title, "1", 1, "C", false, 0, "")
}

func row(pdf *gofpdf.Fpdf, label, value string, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	pdf.SetFont("Arial", style, 10)
	pdf.CellFormat(50, 8, label, "1", 0, "", false, 0, "")
	pdf.CellFormat(0, 8, value, "1", 1, "", false, 0, "")
}

func amount(v int64) string {
	return fmt.Sprintf("%d.00", v)
}
