package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"

	"weekplanner/internal/grid"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/planner"
	"weekplanner/internal/week"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(
	template.New("week.html.tmpl").Funcs(template.FuncMap{
		"px":        formatPx,
		"blockTop":  blockTop,
		"blockSize": blockSize,
		"laneLeft":  laneLeft,
		"laneWidth": laneWidth,
		"clock":     week.Format12Hour,
		"slotBusy":  slotBusy,
		"slots":     slotRange,
		"slotPx":    func() float64 { return grid.PixelsPerSlot },
		"dayPx":     func() float64 { return grid.HoursPerDay * grid.PixelsPerHour },
		"hourPx":    func() float64 { return grid.PixelsPerHour },
		"mulSlot":   func(i int) float64 { return float64(i) * grid.PixelsPerSlot },
		"mulHour":   func(h int) float64 { return float64(h) * grid.PixelsPerHour },
	}).ParseFS(templateFS, "templates/week.html.tmpl"),
)

type pageData struct {
	Week  planner.WeekView
	Weeks []week.Option
}

// handlePage renders the selected week. ?week=N renders that week instead
// and leaves the session's selection alone.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	view := s.planner.Week()
	if v := r.URL.Query().Get("week"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid week")
			return
		}
		if view, err = s.planner.WeekAt(offset); err != nil {
			s.fail(w, "rendering week", err)
			return
		}
	}

	weeks, err := s.planner.Weeks()
	if err != nil {
		s.fail(w, "listing weeks", err)
		return
	}
	data := pageData{Week: view, Weeks: weeks}

	// Render into a buffer so a template error does not leave a half page.
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		appLog.Error("rendering week page failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// blockTop is the block's offset from the top of the day column.
func blockTop(b grid.Block) float64 {
	return float64(b.Hour)*grid.PixelsPerHour + b.TopPx
}

// blockSize clamps the height for CSS; a zero or negative span still gets a
// sliver so it stays clickable.
func blockSize(b grid.Block) float64 {
	if b.HeightPx < grid.PixelsPerSlot/3 {
		return grid.PixelsPerSlot / 3
	}
	return b.HeightPx
}

func laneWidth(b grid.Block) string {
	lanes := max(b.Lanes, 1)
	return strconv.FormatFloat(100/float64(lanes), 'f', 4, 64) + "%"
}

func laneLeft(b grid.Block) string {
	lanes := max(b.Lanes, 1)
	return strconv.FormatFloat(100*float64(b.Lane)/float64(lanes), 'f', 4, 64) + "%"
}

func slotRange() []int {
	out := make([]int, grid.SlotsPerDay)
	for i := range out {
		out[i] = i
	}
	return out
}

func slotBusy(o grid.Occupancy, i int) bool {
	return i >= 0 && i < len(o) && o[i]
}
