// Package logreader renders the records of a heapstore log file.
package logreader

import (
	"fmt"
	"strings"

	"heapstore/pkg/dberror"
	"heapstore/pkg/debug/ui"
	"heapstore/pkg/log"
	"heapstore/pkg/primitives"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Summary counts what a log contains.
type Summary struct {
	Records      int
	Updates      int
	Commits      int
	Aborts       int
	Transactions int
	ImageBytes   uint64
}

// Summarize counts records by type and distinct transactions.
func Summarize(records []*log.LogRecord) Summary {
	var s Summary
	seen := make(map[int64]struct{})
	for _, r := range records {
		s.Records++
		seen[r.TID.ID()] = struct{}{}
		switch r.Type {
		case log.UpdateRecord:
			s.Updates++
			s.ImageBytes += uint64(len(r.BeforeImage) + len(r.AfterImage))
		case log.CommitRecord:
			s.Commits++
		case log.AbortRecord:
			s.Aborts++
		}
	}
	s.Transactions = len(seen)
	return s
}

// Load reads every record of the log at path. When the log ends in a corrupt
// or truncated record, the records before it are returned with the error.
func Load(path primitives.Filepath) ([]*log.LogRecord, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.ReadAll()
}

// Render loads the log at path and renders its records. A corrupt tail is
// reported after the records that could be read.
func Render(path primitives.Filepath) (string, error) {
	records, readErr := Load(path)
	if readErr != nil && !errors.Is(readErr, dberror.ErrStorageInvalid) {
		return "", readErr
	}
	out := RenderRecords(path.String(), records)
	if readErr != nil {
		out += "\n" + ui.ErrorStyle.Render("stopped: "+readErr.Error()) + "\n"
	}
	return out, readErr
}

// RenderRecords renders a header, a summary line and one row per record.
func RenderRecords(title string, records []*log.LogRecord) string {
	var b strings.Builder

	b.WriteString(ui.RenderTitle("Log "+title) + "\n")
	b.WriteString(ui.RenderHeaderWithCount("Records", len(records)) + "\n")

	b.WriteString(summaryLine(records) + "\n\n")

	if len(records) == 0 {
		b.WriteString(ui.MutedStyle.Render("(empty log)") + "\n")
		return b.String()
	}

	b.WriteString(recordTable(records))
	return b.String()
}

func summaryLine(records []*log.LogRecord) string {
	s := Summarize(records)
	return ui.RenderKV(
		"updates", fmt.Sprint(s.Updates),
		"commits", fmt.Sprint(s.Commits),
		"aborts", fmt.Sprint(s.Aborts),
		"transactions", fmt.Sprint(s.Transactions),
		"images", humanize.Bytes(s.ImageBytes),
	)
}

var recordHeaders = []string{"LSN", "TYPE", "TX", "PAGE", "BEFORE", "AFTER"}

func recordTable(records []*log.LogRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, recordRow(r))
	}
	return ui.RenderTable(recordHeaders, rows)
}

func recordRow(r *log.LogRecord) []string {
	row := []string{
		fmt.Sprint(uint64(r.LSN)),
		colorizeType(r.Type),
		r.TID.String(),
		"", "", "",
	}
	if r.Type == log.UpdateRecord {
		row[3] = r.PageID.String()
		row[4] = imageSize(r.BeforeImage)
		row[5] = imageSize(r.AfterImage)
	}
	return row
}

func imageSize(img []byte) string {
	if img == nil {
		return "-"
	}
	return humanize.Bytes(uint64(len(img)))
}

func colorizeType(t log.RecordType) string {
	var color lipgloss.TerminalColor
	switch t {
	case log.CommitRecord:
		color = ui.SuccessColor
	case log.AbortRecord:
		color = ui.ErrorColor
	case log.UpdateRecord:
		color = ui.WarningColor
	default:
		color = ui.MutedColor
	}
	return lipgloss.NewStyle().Foreground(color).Render(t.String())
}
