// Package export renders a processed meeting as an XLSX workbook.
package export

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"meeting-notes-go/internal/types"
)

// ErrNotReady is returned for jobs that have no notes to export yet.
var ErrNotReady = errors.New("meeting has not finished processing")

const (
	SheetSummary     = "Summary"
	SheetKeyPoints   = "Key Points"
	SheetActionItems = "Action Items"
	SheetDecisions   = "Decisions"
	SheetTranscript  = "Transcript"

	// a cell holds at most 32767 characters
	maxCellRunes = 32000
)

// NotesWorkbook returns the XLSX bytes for a completed job.
func NotesWorkbook(job *types.Job) ([]byte, error) {
	if job == nil || job.Status != types.JobStatusCompleted || job.Notes == nil {
		return nil, ErrNotReady
	}
	notes := job.Notes

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][2]any{
		{"Title", job.Title},
		{"File", job.Filename},
		{"Uploaded", job.UploadDate.UTC().Format("2006-01-02 15:04:05")},
		{"Status", string(job.Status)},
		{"Summary", notes.Summary},
		{"Sentiment", notes.Sentiment},
	}
	for i, kv := range summary {
		row := i + 1
		_ = f.SetCellValue(SheetSummary, cell(1, row), kv[0])
		_ = f.SetCellValue(SheetSummary, cell(2, row), kv[1])
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 14)
	_ = f.SetColWidth(SheetSummary, "B", "B", 100)

	lists := []struct {
		sheet  string
		header string
		items  []string
	}{
		{SheetKeyPoints, "Key Point", notes.KeyPoints},
		{SheetActionItems, "Action Item", notes.ActionItems},
		{SheetDecisions, "Decision", notes.Decisions},
	}
	for _, l := range lists {
		if err := writeList(f, l.sheet, l.header, l.items); err != nil {
			return nil, err
		}
	}

	if err := writeTranscript(f, transcriptText(job)); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeList(f *excelize.File, sheet, header string, items []string) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	_ = f.SetCellValue(sheet, "A1", "#")
	_ = f.SetCellValue(sheet, "B1", header)
	for i, item := range items {
		_ = f.SetCellValue(sheet, cell(1, i+2), i+1)
		_ = f.SetCellValue(sheet, cell(2, i+2), item)
	}
	_ = f.SetColWidth(sheet, "A", "A", 6)
	_ = f.SetColWidth(sheet, "B", "B", 100)
	return nil
}

func writeTranscript(f *excelize.File, text string) error {
	if _, err := f.NewSheet(SheetTranscript); err != nil {
		return fmt.Errorf("create sheet %s: %w", SheetTranscript, err)
	}
	_ = f.SetCellValue(SheetTranscript, "A1", "Transcript")
	for i, part := range splitRunes(text, maxCellRunes) {
		_ = f.SetCellValue(SheetTranscript, cell(1, i+2), part)
	}
	_ = f.SetColWidth(SheetTranscript, "A", "A", 120)
	return nil
}

// transcriptText prefers the optimized transcript, then translated, then raw.
func transcriptText(job *types.Job) string {
	if t := job.Transcription; t != nil {
		for _, s := range []string{t.Optimized, t.Translated, t.Raw} {
			if s != "" {
				return s
			}
		}
	}
	if job.Notes.Translated != "" {
		return job.Notes.Translated
	}
	return job.Notes.Raw
}

func splitRunes(s string, n int) []string {
	r := []rune(s)
	var parts []string
	for len(r) > n {
		parts = append(parts, string(r[:n]))
		r = r[n:]
	}
	if len(r) > 0 {
		parts = append(parts, string(r))
	}
	return parts
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
