package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/perspicacity/internal/storage"
)

// Summary contains aggregated figures over a set of stored fetch attempts.
type Summary struct {
	TotalAttempts   int
	Accepted        int
	AcceptanceRate  float64
	TotalErrors     int
	TotalDetections int
	Queries         int
	ByReason        map[string]int
	ByStrategy      map[string]int
	StatusCodes     map[int]int
	DetectionsBySrc map[string]int
	TotalContent    int
	AvgDuration     time.Duration
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// GenerateSummary aggregates attempts into a Summary.
func GenerateSummary(attempts []*storage.Attempt) Summary {
	s := Summary{
		ByReason:        make(map[string]int),
		ByStrategy:      make(map[string]int),
		StatusCodes:     make(map[int]int),
		DetectionsBySrc: make(map[string]int),
	}

	if len(attempts) == 0 {
		return s
	}

	s.StartTime = attempts[0].CreatedAt
	s.EndTime = attempts[0].CreatedAt

	queries := make(map[string]struct{})
	var total time.Duration

	for _, a := range attempts {
		s.TotalAttempts++
		queries[a.Query] = struct{}{}
		s.ByReason[a.Reason]++
		if a.Strategy != "" {
			s.ByStrategy[a.Strategy]++
		}
		if a.Accepted() {
			s.Accepted++
			s.TotalContent += a.ContentLength
		}
		if a.Error != "" {
			s.TotalErrors++
		}
		if a.DetectionSrc != "" {
			s.TotalDetections++
			s.DetectionsBySrc[a.DetectionSrc]++
		}
		if a.StatusCode > 0 {
			s.StatusCodes[a.StatusCode]++
		}
		total += a.Duration

		if a.CreatedAt.Before(s.StartTime) {
			s.StartTime = a.CreatedAt
		}
		if a.CreatedAt.After(s.EndTime) {
			s.EndTime = a.CreatedAt
		}
	}

	s.Queries = len(queries)
	s.AcceptanceRate = float64(s.Accepted) / float64(s.TotalAttempts)
	s.AvgDuration = total / time.Duration(s.TotalAttempts)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

var funcs = map[string]any{
	"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
}

const textTmpl = `PerSpicacity Fetch Summary
--------------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Queries:       {{.Queries}}
Attempts:      {{.TotalAttempts}} ({{.Accepted}} accepted, {{percent .AcceptanceRate}})
Avg Fetch:     {{.AvgDuration}}
Content:       {{.TotalContent}} characters
Total Errors:  {{.TotalErrors}}

Reasons:
{{- range $reason, $count := .ByReason}}
  {{$reason}}: {{$count}}
{{- else}}
  None
{{- end}}

Strategies:
{{- range $strategy, $count := .ByStrategy}}
  {{$strategy}}: {{$count}}
{{- else}}
  None
{{- end}}

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Detections: {{.TotalDetections}}
{{- range $src, $count := .DetectionsBySrc}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>PerSpicacity Fetch Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .ok { color: green; }
  .bad { color: red; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>PerSpicacity Fetch Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Queries</div>
    <div class="stat-val">{{.Queries}}</div>
  </div>
  <div class="stat-card">
    <div>Attempts</div>
    <div class="stat-val">{{.TotalAttempts}}</div>
  </div>
  <div class="stat-card">
    <div>Accepted</div>
    <div class="stat-val ok">{{.Accepted}} ({{percent .AcceptanceRate}})</div>
  </div>
  <div class="stat-card">
    <div>Detections</div>
    <div class="stat-val {{if gt .TotalDetections 0}}bad{{else}}ok{{end}}">{{.TotalDetections}}</div>
  </div>

  <h3>Reasons</h3>
  <table>
    <tr><th>Reason</th><th>Count</th></tr>
    {{- range $reason, $count := .ByReason}}
    <tr><td>{{$reason}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Status Codes</h3>
  <table>
    <tr><th>Code</th><th>Count</th></tr>
    {{- range $code, $count := .StatusCodes}}
    <tr><td>{{$code}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Detections By Source</h3>
  <table>
    <tr><th>Source</th><th>Count</th></tr>
    {{- range $src, $count := .DetectionsBySrc}}
    <tr><td>{{$src}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a basic HTML report to the provided writer. Detection
// sources come from remote pages and are escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
