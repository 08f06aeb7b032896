// Package report renders a single appointment as a printable PDF summary.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

var statusLabels = map[model.Status]string{
	model.StatusAvailable: "Available",
	model.StatusScheduled: "Confirmed",
	model.StatusCompleted: "Completed",
	model.StatusCancelled: "Cancelled",
}

const timeLayout = "2006-01-02 15:04"

// Render writes the appointment summary to w. Times are shown in loc;
// generatedAt stamps the footer and the document metadata.
func Render(w io.Writer, appt model.Appointment, loc *time.Location, generatedAt time.Time) error {
	if loc == nil {
		loc = time.UTC
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetCreationDate(generatedAt)
	pdf.SetTitle("Appointment "+appt.ID, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Appointment summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(113, 113, 122)
	pdf.CellFormat(0, 6, tr("Reference "+appt.ID), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	label, ok := statusLabels[appt.Status]
	if !ok {
		label = string(appt.Status)
	}
	pdf.SetTextColor(9, 9, 11)
	section(pdf, "Details")
	row(pdf, tr, "Status", label)
	row(pdf, tr, "Date", appt.StartTime.In(loc).Format("2006-01-02"))
	row(pdf, tr, "Time", fmt.Sprintf("%s - %s", appt.StartTime.In(loc).Format("15:04"), appt.EndTime.In(loc).Format("15:04")))
	row(pdf, tr, "Duration", fmt.Sprintf("%d min", appt.DurationMinutes))
	row(pdf, tr, "Time zone", loc.String())

	pdf.Ln(4)
	section(pdf, "Participants")
	row(pdf, tr, "Practitioner", appt.Practitioner)
	patient := appt.Patient
	if patient == "" {
		patient = "-"
	}
	row(pdf, tr, "Patient", patient)
	row(pdf, tr, "Organization", appt.Organization)

	pdf.Ln(4)
	section(pdf, "History")
	row(pdf, tr, "Created", appt.CreatedAt.In(loc).Format(timeLayout))
	if appt.AcceptedAt != nil {
		row(pdf, tr, "Confirmed", appt.AcceptedAt.In(loc).Format(timeLayout))
	}

	pdf.SetY(-25)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(113, 113, 122)
	pdf.CellFormat(0, 6, "Generated "+generatedAt.In(loc).Format(timeLayout), "", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render appointment pdf: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func row(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(113, 113, 122)
	pdf.CellFormat(45, 7, label, "", 0, "L", false, 0, "")
	pdf.SetTextColor(9, 9, 11)
	pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
}
