package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"magabot/internal/models"
)

// Stats are the aggregate counters of a case
type Stats struct {
	Postings       int     `json:"postings"`
	Applications   int     `json:"applications"`
	Successful     int     `json:"successful_applications"`
	SuccessRate    float64 `json:"success_rate"`
	InterviewBrief int     `json:"interview_briefs"`
	BestOffer      int     `json:"best_offer,omitempty"`
}

// Document is the JSON export of a case
type Document struct {
	ExportedAt time.Time    `json:"exported_at"`
	Case       *models.Case `json:"case"`
	Stats      Stats        `json:"stats"`
}

// Build assembles the export document
func Build(c *models.Case, now time.Time) *Document {
	a := c.Artifacts
	stats := Stats{
		Postings:       len(a.Postings),
		Applications:   len(a.Applications),
		Successful:     len(a.SuccessfulApplications()),
		InterviewBrief: len(a.Briefs),
	}
	if stats.Applications > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Applications)
	}
	if a.Negotiation != nil {
		stats.BestOffer = a.Negotiation.Winner.FinalOffer
	}
	return &Document{ExportedAt: now.UTC(), Case: c, Stats: stats}
}

// JSON renders the export document as indented JSON
func JSON(c *models.Case, now time.Time) ([]byte, error) {
	data, err := json.MarshalIndent(Build(c, now), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal case export: %w", err)
	}
	return data, nil
}

// FileName is the download name of a case workbook
func FileName(c *models.Case, ext string) string {
	id := c.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("magabot_case_%s_%s.%s", id, c.CreatedAt.UTC().Format("20060102"), ext)
}

// XLSX renders the case as a workbook with one sheet per artifact type
func XLSX(c *models.Case, now time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	doc := Build(c, now)
	a := c.Artifacts
	sheets := []struct {
		name string
		head []interface{}
		rows [][]interface{}
	}{
		{"Summary", []interface{}{"Field", "Value"}, summaryRows(doc)},
		{"Postings", []interface{}{"ID", "Title", "Company", "Location", "Salary from", "Salary to", "Currency", "URL", "Source", "Match"}, postingRows(a.Postings)},
		{"Applications", []interface{}{"Posting", "Company", "Title", "Success", "Method", "Message", "Match", "Submitted"}, applicationRows(a.Applications)},
		{"Negotiation", []interface{}{"Strategy", "Personality", "Risk", "Final offer", "Rounds", "Score", "Order", "Succeeded", "Error"}, negotiationRows(a.Negotiation)},
		{"History", []interface{}{"Stage", "At", "Note"}, historyRows(c.History)},
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", sh.name, err)
		}
		if err := writeTable(f, sh.name, sh.head, sh.rows, header); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func writeTable(f *excelize.File, sheet string, head []interface{}, rows [][]interface{}, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, _ := excelize.ColumnNumberToName(len(head))
	if err := f.SetCellStyle(sheet, "A1", last+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return f.SetColWidth(sheet, "A", last, 18)
}

func summaryRows(doc *Document) [][]interface{} {
	c := doc.Case
	rows := [][]interface{}{
		{"Case", c.ID},
		{"Stage", string(c.Stage)},
		{"Target role", c.Criteria.TargetRole},
		{"Target salary", c.Criteria.TargetSalary},
		{"Postings", doc.Stats.Postings},
		{"Applications", doc.Stats.Applications},
		{"Successful", doc.Stats.Successful},
		{"Success rate", fmt.Sprintf("%.0f%%", doc.Stats.SuccessRate*100)},
	}
	if c.FailedStage != "" {
		rows = append(rows, []interface{}{"Failed stage", string(c.FailedStage)}, []interface{}{"Failure", c.FailureReason})
	}
	if n := c.Artifacts.Negotiation; n != nil {
		rows = append(rows,
			[]interface{}{"Best offer", n.Winner.FinalOffer},
			[]interface{}{"Winning strategy", n.Winner.StrategyID},
			[]interface{}{"Confidence", n.Confidence},
			[]interface{}{"Recommendation", n.Recommendation})
	}
	if cl := c.Artifacts.Close; cl != nil {
		rows = append(rows, []interface{}{"Closed with", cl.Company}, []interface{}{"Final salary", cl.Salary})
	}
	return append(rows, []interface{}{"Exported", doc.ExportedAt.Format(time.RFC3339)})
}

func postingRows(postings []models.Posting) [][]interface{} {
	rows := make([][]interface{}, 0, len(postings))
	for _, p := range postings {
		rows = append(rows, []interface{}{p.ID, p.Title, p.Company, p.Location, p.SalaryFrom, p.SalaryTo, p.Currency, p.URL, p.Source, p.MatchScore})
	}
	return rows
}

func applicationRows(apps []models.Application) [][]interface{} {
	rows := make([][]interface{}, 0, len(apps))
	for _, app := range apps {
		rows = append(rows, []interface{}{app.PostingID, app.Company, app.Title, app.Success, app.Method, app.Message, app.MatchScore, app.SubmittedAt.UTC().Format(time.RFC3339)})
	}
	return rows
}

func negotiationRows(out *models.NegotiationOutcome) [][]interface{} {
	if out == nil {
		return nil
	}
	rows := make([][]interface{}, 0, len(out.Runs))
	for _, r := range out.Runs {
		rows = append(rows, []interface{}{r.StrategyID, r.Personality, r.Risk, r.FinalOffer, r.Rounds, r.Score, r.Order, r.Succeeded, r.Error})
	}
	return rows
}

func historyRows(history []models.StageVisit) [][]interface{} {
	rows := make([][]interface{}, 0, len(history))
	for _, v := range history {
		rows = append(rows, []interface{}{string(v.Stage), v.At.UTC().Format(time.RFC3339), v.Note})
	}
	return rows
}
