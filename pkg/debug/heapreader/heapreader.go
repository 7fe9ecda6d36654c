// Package heapreader renders the pages of a heap file straight from disk,
// without a buffer pool or locks. Point it at files of a closed database.
package heapreader

import (
	"fmt"
	"strings"

	"heapstore/pkg/debug/ui"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/heap"
	"heapstore/pkg/tuple"

	"github.com/dustin/go-humanize"
)

const maxCellWidth = 32

// PageSummary describes one page of a heap file.
type PageSummary struct {
	PageNo    primitives.PageNumber
	NumSlots  int
	UsedSlots int
	Occupancy []bool // one entry per slot
	Tuples    []*tuple.Tuple
}

// Inspect reads every page of the heap file at path using schema td.
func Inspect(path primitives.Filepath, td *tuple.TupleDescription) ([]PageSummary, error) {
	if !path.Exists() {
		return nil, fmt.Errorf("heap file %s does not exist", path)
	}
	hf, err := heap.NewHeapFile(path, path.TableID(), td)
	if err != nil {
		return nil, err
	}
	defer hf.Close()

	numPages, err := hf.NumPages()
	if err != nil {
		return nil, err
	}

	summaries := make([]PageSummary, 0, numPages)
	for pageNo := primitives.PageNumber(0); pageNo < numPages; pageNo++ {
		p, err := hf.ReadPage(primitives.NewPageID(hf.GetID(), pageNo))
		if err != nil {
			return summaries, fmt.Errorf("page %d: %w", pageNo, err)
		}
		hp := p.(*heap.HeapPage)

		s := PageSummary{
			PageNo:    pageNo,
			NumSlots:  hp.GetNumSlots(),
			Occupancy: make([]bool, hp.GetNumSlots()),
			Tuples:    hp.GetTuples(),
		}
		for i := range s.Occupancy {
			s.Occupancy[i] = hp.IsSlotUsed(primitives.SlotID(i))
		}
		s.UsedSlots = len(s.Tuples)
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Render inspects the heap file and renders an occupancy map per page
// followed by the stored tuples.
func Render(path primitives.Filepath, td *tuple.TupleDescription, pageSize int) (string, error) {
	pages, err := Inspect(path, td)
	if err != nil {
		return "", err
	}
	return RenderPages(path.String(), td, pages, pageSize), nil
}

// RenderPages is Render for pages that were already inspected.
func RenderPages(title string, td *tuple.TupleDescription, pages []PageSummary, pageSize int) string {
	var b strings.Builder

	b.WriteString(ui.RenderTitle("Heap file "+title) + "\n")
	b.WriteString(fileSummary(td, pages, pageSize) + "\n\n")

	if len(pages) == 0 {
		b.WriteString(ui.MutedStyle.Render("(no pages)") + "\n")
		return b.String()
	}

	b.WriteString(ui.RenderHeaderWithCount("Pages", len(pages)) + "\n")
	used := 0
	for _, p := range pages {
		used += p.UsedSlots
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			ui.LabelStyle.Render(fmt.Sprintf("page %4d", p.PageNo)),
			occupancyBar(p.Occupancy),
			ui.MutedStyle.Render(fmt.Sprintf("%d/%d", p.UsedSlots, p.NumSlots))))
	}

	b.WriteString("\n" + ui.RenderHeaderWithCount("Tuples", used) + "\n")
	var rows [][]string
	for _, p := range pages {
		for _, t := range p.Tuples {
			rows = append(rows, tupleRow(t, td.NumFields()))
		}
	}
	b.WriteString(ui.RenderTable(tupleHeaders(td), rows))
	return b.String()
}

func fileSummary(td *tuple.TupleDescription, pages []PageSummary, pageSize int) string {
	used, total := 0, 0
	for _, p := range pages {
		used += p.UsedSlots
		total += p.NumSlots
	}
	return ui.RenderKV(
		"schema", td.String(),
		"pages", fmt.Sprint(len(pages)),
		"size", humanize.Bytes(uint64(len(pages)*pageSize)),
		"tuples", fmt.Sprintf("%d/%d slots", used, total),
	)
}

func tupleHeaders(td *tuple.TupleDescription) []string {
	headers := []string{"RID"}
	for i := range td.Types {
		headers = append(headers, columnName(td, i))
	}
	return headers
}

func occupancyBar(slots []bool) string {
	var used, free strings.Builder
	var b strings.Builder
	flush := func() {
		if used.Len() > 0 {
			b.WriteString(ui.SuccessStyle.Render(used.String()))
			used.Reset()
		}
		if free.Len() > 0 {
			b.WriteString(ui.MutedStyle.Render(free.String()))
			free.Reset()
		}
	}
	for i, s := range slots {
		if s {
			if free.Len() > 0 {
				flush()
			}
			used.WriteString("■")
		} else {
			if used.Len() > 0 {
				flush()
			}
			free.WriteString("□")
		}
		if i == len(slots)-1 {
			flush()
		}
	}
	return b.String()
}

func columnName(td *tuple.TupleDescription, i int) string {
	name, _ := td.GetFieldName(i)
	if name == "" {
		name = fmt.Sprintf("col%d", i)
	}
	return fmt.Sprintf("%s %s", name, td.Types[i])
}

func tupleRow(t *tuple.Tuple, numFields int) []string {
	row := make([]string, 0, numFields+1)
	rid := "-"
	if t.RecordID != nil {
		rid = t.RecordID.String()
	}
	row = append(row, rid)
	for i := 0; i < numFields; i++ {
		f, err := t.GetField(i)
		if err != nil || f == nil {
			row = append(row, "NULL")
			continue
		}
		row = append(row, ui.TruncateString(f.String(), maxCellWidth))
	}
	return row
}
