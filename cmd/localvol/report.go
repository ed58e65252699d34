package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/localvol/config"
	"github.com/wyfcoding/localvol/localvol"
	"github.com/wyfcoding/localvol/surface"
)

var defaultMoneyness = []float64{0.8, 0.9, 1.0, 1.1, 1.2}

// value 定点精度的数值, NaN 与无穷以空值表示.
type value struct {
	d     decimal.Decimal
	valid bool
}

func newValue(v float64, precision int32) value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return value{}
	}
	return value{d: decimal.NewFromFloat(v).Round(precision), valid: true}
}

func (v value) format(precision int32) string {
	if !v.valid {
		return "NaN"
	}
	return v.d.StringFixed(precision)
}

func (v value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return v.d.MarshalJSON()
}

type reportRow struct {
	Time      float64 `json:"time"`
	Moneyness float64 `json:"moneyness"`
	Spot      value   `json:"spot"`
	LocalVol  value   `json:"local_vol"`
	Dupire    *value  `json:"dupire,omitempty"`
	Diff      *value  `json:"diff,omitempty"`
}

type report struct {
	RunID       string         `json:"run_id"`
	Source      string         `json:"source"`
	State       string         `json:"state"`
	Samples     int            `json:"samples"`
	Diagnostics map[string]int `json:"diagnostics"`
	Rows        []reportRow    `json:"rows"`

	precision int32
	dupire    bool
}

// buildReport 在 times x moneyness 网格上求局部波动率; dupire 非空时同时给出 Dupire 值与差值.
// times 为空时使用树的时间网格 (不含 0).
func buildReport(res *localvol.Result, dupire surface.Surface, cfg config.ReportConfig, spot float64, grid localvol.TimeGrid) *report {
	times := cfg.Times
	if len(times) == 0 {
		times = grid.Times()[1:]
	}
	moneyness := cfg.Moneyness
	if len(moneyness) == 0 {
		moneyness = defaultMoneyness
	}

	r := &report{
		RunID:       res.RunID,
		Source:      res.Source.String(),
		State:       res.State.String(),
		Samples:     len(res.Samples),
		Diagnostics: make(map[string]int),
		precision:   cfg.Precision,
		dupire:      dupire != nil,
	}
	for _, d := range res.Diagnostics {
		r.Diagnostics[string(d.Kind)]++
	}

	p := cfg.Precision
	for _, t := range times {
		for _, m := range moneyness {
			s := spot * m
			lv := res.Surface.ZValue(t, s)
			row := reportRow{Time: t, Moneyness: m, Spot: newValue(s, p), LocalVol: newValue(lv, p)}
			if dupire != nil {
				dv := dupire.ZValue(t, s)
				d, diff := newValue(dv, p), newValue(lv-dv, p)
				row.Dupire, row.Diff = &d, &diff
			}
			r.Rows = append(r.Rows, row)
		}
	}
	return r
}

// WriteTable 以对齐的文本表格输出.
func (r *report) WriteTable(w io.Writer) error {
	fmt.Fprintf(w, "run %s  source=%s  state=%s  samples=%d\n", r.RunID, r.Source, r.State, r.Samples)
	kinds := make([]string, 0, len(r.Diagnostics))
	for k := range r.Diagnostics {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "diagnostic %s: %d\n", k, r.Diagnostics[k])
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := "time\tmoneyness\tspot\tlocal_vol\t"
	if r.dupire {
		header += "dupire\tdiff\t"
	}
	fmt.Fprintln(tw, header)
	for _, row := range r.Rows {
		line := fmt.Sprintf("%g\t%g\t%s\t%s\t", row.Time, row.Moneyness, row.Spot.format(r.precision), row.LocalVol.format(r.precision))
		if r.dupire {
			line += fmt.Sprintf("%s\t%s\t", row.Dupire.format(r.precision), row.Diff.format(r.precision))
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

// WriteJSON 以缩进 JSON 输出.
func (r *report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
