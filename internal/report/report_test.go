package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/profilematch/internal/storage"
)

func links(google, bing string) []storage.EngineLink {
	return []storage.EngineLink{{Engine: "google", Link: google}, {Engine: "bing", Link: bing}}
}

func TestSummarize(t *testing.T) {
	now := time.Now().UTC()

	rows := []*storage.OutputRow{
		{
			RunID:         "a",
			ConfirmedLink: "/url?q=https://www.linkedin.com/in/jane&sa=U",
			EngineLinks:   links("/url?q=https://www.linkedin.com/in/jane&sa=U", "https://www.linkedin.com/in/jane"),
			CreatedAt:     now,
		},
		{
			RunID:       "a",
			EngineLinks: links("/url?q=https://www.linkedin.com/in/ann&sa=U", "https://www.linkedin.com/in/ann-2"),
			CreatedAt:   now.Add(time.Minute),
		},
		{
			RunID:       "b",
			EngineLinks: links("", "https://www.linkedin.com/in/john"),
			CreatedAt:   now.Add(2 * time.Minute),
		},
		{
			RunID:       "b",
			EngineLinks: links("", ""),
		},
	}

	s := Summarize(rows)

	if s.Total != 4 || s.Confirmed != 1 || s.Percent != 25 {
		t.Errorf("expected 4 total, 1 confirmed, 25%%, got %+v", s)
	}
	if s.Disagreements != 1 {
		t.Errorf("expected 1 disagreement, got %d", s.Disagreements)
	}
	if s.OneFound != 1 {
		t.Errorf("expected 1 one-found, got %d", s.OneFound)
	}
	if s.NoneFound != 1 {
		t.Errorf("expected 1 none-found, got %d", s.NoneFound)
	}
	if len(s.Engines) != 2 || s.Engines[0] != (EngineCount{"google", 2}) || s.Engines[1] != (EngineCount{"bing", 3}) {
		t.Errorf("unexpected engine hits %+v", s.Engines)
	}
	if s.Runs != 2 {
		t.Errorf("expected 2 runs, got %d", s.Runs)
	}
	if !s.StartTime.Equal(now) || !s.EndTime.Equal(now.Add(2*time.Minute)) {
		t.Errorf("unexpected time range %v - %v", s.StartTime, s.EndTime)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.Percent != 0 || len(s.Engines) != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestWriteJSON(t *testing.T) {
	summary := Summary{
		Total: 5,
	}
	var buf bytes.Buffer
	err := WriteJSON(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), `"total": 5`) {
		t.Errorf("expected JSON to contain total: 5")
	}
	if strings.Contains(buf.String(), "start_time") {
		t.Errorf("expected zero start_time to be omitted")
	}
}

func TestWriteText(t *testing.T) {
	summary := Summary{
		Total:     4,
		Confirmed: 1,
		Percent:   25,
		Engines:   []EngineCount{{"google", 2}, {"bing", 3}},
	}
	var buf bytes.Buffer
	err := WriteText(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Confirmed:      1 (25%)") {
		t.Errorf("expected text to contain confirmed count, got:\n%s", out)
	}
	if !strings.Contains(out, "bing: 3") {
		t.Errorf("expected text to contain bing: 3")
	}
	if strings.Contains(out, "Time:") {
		t.Errorf("expected no time line without timestamps")
	}
}

func TestWriteHTML(t *testing.T) {
	summary := Summary{
		Total:   10,
		Engines: []EngineCount{{"<script>", 1}},
	}
	var buf bytes.Buffer
	err := WriteHTML(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Profile Match Report</title>") {
		t.Errorf("expected HTML title")
	}
	if strings.Contains(out, "<td><script>") || !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("expected engine name to be escaped")
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "pdf", Summary{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
