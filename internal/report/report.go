// Package report summarizes the rows stored by a match run.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/profilematch/internal/storage"
)

// EngineCount is how many people one engine found a link for.
type EngineCount struct {
	Engine string `json:"engine"`
	Hits   int    `json:"hits"`
}

// Summary contains aggregated figures about stored match results.
type Summary struct {
	Total     int `json:"total"`
	Confirmed int `json:"confirmed"`
	// Percent is floor(100 * Confirmed / Total), 0 when Total is 0.
	Percent int `json:"percent"`
	// Disagreements counts people both reconciled engines found, with
	// different profiles.
	Disagreements int `json:"disagreements"`
	// OneFound counts people exactly one reconciled engine found.
	OneFound int `json:"one_found"`
	// NoneFound counts people no engine found at all.
	NoneFound int           `json:"none_found"`
	Engines   []EngineCount `json:"engines"`
	Runs      int           `json:"runs"`
	StartTime time.Time     `json:"start_time,omitzero"`
	EndTime   time.Time     `json:"end_time,omitzero"`
}

// Summarize aggregates rows. Engines are reported in first-seen order and the
// first two engines of each row are the reconciled pair.
func Summarize(rows []*storage.OutputRow) Summary {
	var s Summary
	hits := make(map[string]int)
	var order []string
	runs := make(map[string]struct{})

	for _, r := range rows {
		s.Total++
		if r.Confirmed() {
			s.Confirmed++
		}
		if r.RunID != "" {
			runs[r.RunID] = struct{}{}
		}

		found := 0
		pairFound := 0
		for i, l := range r.EngineLinks {
			if _, seen := hits[l.Engine]; !seen {
				hits[l.Engine] = 0
				order = append(order, l.Engine)
			}
			if l.Link == "" {
				continue
			}
			hits[l.Engine]++
			found++
			if i < 2 {
				pairFound++
			}
		}

		switch {
		case found == 0:
			s.NoneFound++
		case pairFound == 2 && !r.Confirmed():
			s.Disagreements++
		case pairFound == 1:
			s.OneFound++
		}

		if !r.CreatedAt.IsZero() {
			if s.StartTime.IsZero() || r.CreatedAt.Before(s.StartTime) {
				s.StartTime = r.CreatedAt
			}
			if r.CreatedAt.After(s.EndTime) {
				s.EndTime = r.CreatedAt
			}
		}
	}

	if s.Total > 0 {
		s.Percent = 100 * s.Confirmed / s.Total
	}
	for _, e := range order {
		s.Engines = append(s.Engines, EngineCount{Engine: e, Hits: hits[e]})
	}
	s.Runs = len(runs)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

const textTmpl = `Profile Match Summary
---------------------
{{- if not .StartTime.IsZero}}
Time:           {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
{{- end}}
{{- if .Runs}}
Runs:           {{.Runs}}
{{- end}}
Total:          {{.Total}}
Confirmed:      {{.Confirmed}} ({{.Percent}}%)
Disagreements:  {{.Disagreements}}
One found:      {{.OneFound}}
None found:     {{.NoneFound}}

Engine hits:
{{- range .Engines}}
  {{.Engine}}: {{.Hits}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Profile Match Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Profile Match Report</h1>
  {{- if not .StartTime.IsZero}}
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}}</p>
  {{- end}}

  <div class="stat-card">
    <div>People</div>
    <div class="stat-val">{{.Total}}</div>
  </div>
  <div class="stat-card">
    <div>Confirmed</div>
    <div class="stat-val" style="color: {{if gt .Confirmed 0}}green{{else}}red{{end}};">{{.Confirmed}} ({{.Percent}}%)</div>
  </div>
  <div class="stat-card">
    <div>Disagreements</div>
    <div class="stat-val">{{.Disagreements}}</div>
  </div>
  <div class="stat-card">
    <div>One Found</div>
    <div class="stat-val">{{.OneFound}}</div>
  </div>
  <div class="stat-card">
    <div>None Found</div>
    <div class="stat-val">{{.NoneFound}}</div>
  </div>

  <h3>Engine Hits</h3>
  <table>
    <tr><th>Engine</th><th>Hits</th></tr>
    {{- range .Engines}}
    <tr><td>{{.Engine}}</td><td>{{.Hits}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}

// Write renders summary in format: text, json or html.
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}
