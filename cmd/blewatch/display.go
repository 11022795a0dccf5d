package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/srg/blewatch/internal/adapter"
	"github.com/srg/blewatch/internal/advert"
	"github.com/srg/blewatch/pkg/config"
	"github.com/srg/blewatch/registry"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	rssiStrong = -60
	rssiFair   = -70

	freshWindow  = 5 * time.Second
	newcomerAge  = 15 * time.Second
	maxNameWidth = 20
)

// renderer draws registry snapshots. Table cells are padded before they are
// coloured so escape sequences never count towards column width.
type renderer struct {
	out         io.Writer
	format      string
	target      string
	maxAge      time.Duration
	hideExpired bool
	colors      bool
}

func newRenderer(out io.Writer, cfg *config.Config, hideExpired, colors bool) *renderer {
	return &renderer{
		out:         out,
		format:      cfg.OutputFormat,
		target:      advert.NormalizeUUID(cfg.TargetService),
		maxAge:      cfg.MaxAgeThreshold,
		hideExpired: hideExpired,
		colors:      colors,
	}
}

func (r *renderer) Render(state adapter.State, views []registry.View, now time.Time) error {
	if r.hideExpired {
		views = registry.WithoutExpired(views)
	}
	if r.format == config.FormatJSON {
		return r.renderJSON(state, views)
	}
	return r.renderTable(state, views, now)
}

type jsonDevice struct {
	Name        string    `json:"name,omitempty"`
	RSSI        int       `json:"rssi"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Services    []string  `json:"services"`
	TxPower     *int      `json:"tx_power,omitempty"`
	Connectable bool      `json:"connectable"`
	Current     bool      `json:"current"`
	Expired     bool      `json:"expired"`
	Target      bool      `json:"target"`
}

type jsonSnapshot struct {
	AdapterState adapter.State                              `json:"adapter_state"`
	Devices      *orderedmap.OrderedMap[string, jsonDevice] `json:"devices"`
}

func (r *renderer) renderJSON(state adapter.State, views []registry.View) error {
	devices := orderedmap.New[string, jsonDevice]()
	for _, v := range views {
		devices.Set(v.ID, jsonDevice{
			Name:        v.LocalName,
			RSSI:        v.RSSI,
			FirstSeen:   v.FirstSeen,
			LastSeen:    v.LastSeen,
			Services:    v.Services,
			TxPower:     v.TxPower,
			Connectable: v.Connectable,
			Current:     v.Current,
			Expired:     v.Expired,
			Target:      r.isTarget(v),
		})
	}

	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonSnapshot{AdapterState: state, Devices: devices})
}

func (r *renderer) renderTable(state adapter.State, views []registry.View, now time.Time) error {
	var b strings.Builder

	if r.target != "" {
		fmt.Fprintf(&b, "Devices seen in the last %d seconds (* advertises %s)\n", int(r.maxAge.Seconds()), r.target)
	} else {
		fmt.Fprintf(&b, "Devices seen in the last %d seconds\n", int(r.maxAge.Seconds()))
	}
	fmt.Fprintf(&b, "Adapter: %s\n", r.stateText(state))

	current, other := registry.Partition(views)
	rows := r.rows(views, now)
	widths := columnWidths(rows)

	b.WriteString("\nCurrent\n")
	if len(current) == 0 {
		b.WriteString("  (none)\n")
	} else {
		r.writeHeader(&b, widths)
		for _, row := range rows[:len(current)] {
			r.writeRow(&b, row, widths)
		}
	}

	if len(other) > 0 {
		b.WriteString("\nOther\n")
		r.writeHeader(&b, widths)
		for _, row := range rows[len(current):] {
			r.writeRow(&b, row, widths)
		}
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

var tableHeader = row{id: "ID", name: "NAME", firstSeen: "FIRST SEEN", lastSeen: "LAST SEEN", rssi: "RSSI"}

type row struct {
	marker    string
	id        string
	name      string
	firstSeen string
	lastSeen  string
	rssi      string

	lastSeenColor *color.Color
	rssiColor     *color.Color
}

func (r *renderer) rows(views []registry.View, now time.Time) []row {
	rows := make([]row, 0, len(views))
	for _, v := range views {
		rw := row{
			marker:    " ",
			id:        v.ID,
			name:      truncate(v.LocalName, maxNameWidth),
			firstSeen: sinceText(v.FirstSeen, now),
			lastSeen:  sinceText(v.LastSeen, now),
			rssi:      fmt.Sprintf("%d dBm", v.RSSI),
		}
		if r.isTarget(v) {
			rw.marker = "*"
		}

		switch {
		case now.Sub(v.LastSeen) < freshWindow:
			rw.lastSeenColor = r.color(color.FgGreen)
		case now.Sub(v.FirstSeen) < newcomerAge:
			rw.lastSeenColor = r.color(color.FgYellow)
		}
		switch {
		case v.RSSI > rssiStrong:
			rw.rssiColor = r.color(color.FgGreen)
		case v.RSSI > rssiFair:
			rw.rssiColor = r.color(color.FgYellow)
		}
		rows = append(rows, rw)
	}
	return rows
}

type widths struct {
	id, name, firstSeen, lastSeen int
}

func columnWidths(rows []row) widths {
	w := widths{
		id:        utf8.RuneCountInString(tableHeader.id),
		name:      utf8.RuneCountInString(tableHeader.name),
		firstSeen: utf8.RuneCountInString(tableHeader.firstSeen),
		lastSeen:  utf8.RuneCountInString(tableHeader.lastSeen),
	}
	for _, rw := range rows {
		w.id = max(w.id, utf8.RuneCountInString(rw.id))
		w.name = max(w.name, utf8.RuneCountInString(rw.name))
		w.firstSeen = max(w.firstSeen, utf8.RuneCountInString(rw.firstSeen))
		w.lastSeen = max(w.lastSeen, utf8.RuneCountInString(rw.lastSeen))
	}
	return w
}

func (r *renderer) writeHeader(b *strings.Builder, w widths) {
	r.writeRow(b, tableHeader, w)
}

func (r *renderer) writeRow(b *strings.Builder, rw row, w widths) {
	marker := rw.marker
	if marker == "" {
		marker = " "
	}
	fmt.Fprintf(b, "%s %s  %s  %s  %s  %s\n",
		marker,
		pad(rw.id, w.id),
		pad(rw.name, w.name),
		pad(rw.firstSeen, w.firstSeen),
		paint(rw.lastSeenColor, pad(rw.lastSeen, w.lastSeen)),
		paint(rw.rssiColor, rw.rssi),
	)
}

func (r *renderer) stateText(s adapter.State) string {
	var c *color.Color
	switch s {
	case adapter.Unknown:
	case adapter.Resetting:
		c = r.color(color.FgYellow)
	case adapter.PoweredOn:
		c = r.color(color.FgGreen)
	default:
		c = r.color(color.FgRed)
	}
	return paint(c, s.String())
}

func (r *renderer) color(attr color.Attribute) *color.Color {
	c := color.New(attr)
	if r.colors {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (r *renderer) isTarget(v registry.View) bool {
	return r.target != "" && v.Advertises(r.target)
}

func paint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

// sinceText renders an age as "now" below one second, whole seconds otherwise.
func sinceText(t, now time.Time) string {
	age := now.Sub(t)
	if age < time.Second {
		return "now"
	}
	return fmt.Sprintf("%d seconds ago", int(age.Seconds()))
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[2J\033[H")
}
