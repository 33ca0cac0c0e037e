package schedule

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shiragiku/toka/internal/toka/llm"
)

// scriptedProvider returns one canned reply for every model and records the
// prompts it saw.
type scriptedProvider struct {
	reply   string
	err     error
	prompts []string
}

func (s *scriptedProvider) GenerateText(_ context.Context, _, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func testGateway(p llm.Provider) *llm.Gateway {
	return llm.NewGateway(p, []string{"test-model"})
}

func fixedNow() time.Time {
	// 2025-06-10 in JST.
	return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
}

// --- Extractor ----------------------------------------------------------------

func TestExtractRecords(t *testing.T) {
	p := &scriptedProvider{reply: "```json\n" +
		`[{"type":"課題","task":"math homework","due":"2025-06-11"},` +
		`{"type":"課題","task":"report submission","due":"2025-06-13"}]` +
		"\n```"}
	e := NewExtractor(testGateway(p))
	e.now = fixedNow

	got, err := e.Extract(context.Background(), "明日の数学の宿題と来週金曜までにレポート提出")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []Record{
		{Type: "課題", Task: "math homework", Due: "2025-06-11"},
		{Type: "課題", Task: "report submission", Due: "2025-06-13"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestExtractEmbedsAnchorDates(t *testing.T) {
	p := &scriptedProvider{reply: "[]"}
	e := NewExtractor(testGateway(p))
	e.now = fixedNow

	if _, err := e.Extract(context.Background(), "明日テスト"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(p.prompts) != 1 {
		t.Fatalf("expected one generation call, got %d", len(p.prompts))
	}
	prompt := p.prompts[0]
	if !strings.Contains(prompt, "2025-06-10") || !strings.Contains(prompt, "2025-06-11") {
		t.Errorf("prompt missing today/tomorrow anchors: %s", prompt)
	}
}

func TestExtractNonArrayIsEmpty(t *testing.T) {
	for _, reply := range []string{`{"task":"x"}`, `"just text"`, `42`} {
		p := &scriptedProvider{reply: reply}
		e := NewExtractor(testGateway(p))
		e.now = fixedNow

		got, err := e.Extract(context.Background(), "today's weather is nice")
		if err != nil {
			t.Fatalf("Extract(%q): %v", reply, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Extract with reply %q = %v, want empty non-nil slice", reply, got)
		}
	}
}

func TestExtractDropsTasklessRecords(t *testing.T) {
	p := &scriptedProvider{reply: `[{"type":"課題","task":"","due":"2025-06-11"},{"task":"国語の音読"}]`}
	e := NewExtractor(testGateway(p))
	e.now = fixedNow

	got, err := e.Extract(context.Background(), "宿題")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []Record{{Type: TypeOther, Task: "国語の音読", Due: DueUnspecified}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestExtractGenerationFailureIsEmpty(t *testing.T) {
	p := &scriptedProvider{err: fmt.Errorf("%w: quota", llm.ErrRateLimited)}
	e := NewExtractor(testGateway(p))
	e.now = fixedNow

	got, err := e.Extract(context.Background(), "明日の数学の宿題")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

// --- Resolver -----------------------------------------------------------------

var resolverRows = []Record{
	{Type: "課題", Task: "math homework", Due: "2025-06-11"},
	{Type: "テスト", Task: "english test", Due: "2025-06-20"},
}

func TestResolveDeletion(t *testing.T) {
	p := &scriptedProvider{reply: `{"indicesToDelete":[0],"reason":""}`}
	r := NewResolver(testGateway(p))
	r.now = fixedNow

	got, err := r.ResolveDeletion(context.Background(), "cancel the math one", resolverRows)
	if err != nil {
		t.Fatalf("ResolveDeletion: %v", err)
	}
	if !reflect.DeepEqual(got.Indices, []int{0}) || got.Reason != "" {
		t.Errorf("got %+v, want indices [0] with empty reason", got)
	}
}

func TestResolveDeletionLegacySingleIndex(t *testing.T) {
	p := &scriptedProvider{reply: `{"indexToDelete":1,"reason":"英語のテスト"}`}
	r := NewResolver(testGateway(p))
	r.now = fixedNow

	got, err := r.ResolveDeletion(context.Background(), "英語の方を消して", resolverRows)
	if err != nil {
		t.Fatalf("ResolveDeletion: %v", err)
	}
	if !reflect.DeepEqual(got.Indices, []int{1}) {
		t.Errorf("got indices %v, want [1]", got.Indices)
	}
}

func TestResolveDeletionUndecidable(t *testing.T) {
	p := &scriptedProvider{reply: `{"indicesToDelete":[],"reason":"どの予定か特定できません"}`}
	r := NewResolver(testGateway(p))
	r.now = fixedNow

	got, err := r.ResolveDeletion(context.Background(), "あれ消して", resolverRows)
	if err != nil {
		t.Fatalf("ResolveDeletion: %v", err)
	}
	if len(got.Indices) != 0 || got.Reason == "" {
		t.Errorf("got %+v, want empty indices with a reason", got)
	}
}

func TestResolveDeletionMalformedReply(t *testing.T) {
	p := &scriptedProvider{reply: `{"indicesToDelete":"zero"}`}
	r := NewResolver(testGateway(p))
	r.now = fixedNow

	got, err := r.ResolveDeletion(context.Background(), "数学の宿題", resolverRows)
	if err != nil {
		t.Fatalf("ResolveDeletion: %v", err)
	}
	if len(got.Indices) != 0 || got.Reason == "" {
		t.Errorf("got %+v, want empty indices with failure reason", got)
	}
}

// --- Scanner ------------------------------------------------------------------

func TestScanExpiredConservativeFilter(t *testing.T) {
	rows := []Record{
		{Type: "課題", Task: "past", Due: "2025-06-01"},
		{Type: "課題", Task: "today", Due: "2025-06-10"},
		{Type: "課題", Task: "future", Due: "2025-06-20"},
		{Type: "課題", Task: "relative", Due: "来週"},
		{Type: "課題", Task: "unspecified", Due: DueUnspecified},
	}
	// Adversarial model reply flags everything.
	p := &scriptedProvider{reply: `{"expiredIndices":[0,1,2,3,4,99]}`}
	s := NewScanner(testGateway(p))

	got, err := s.ScanExpired(context.Background(), rows, fixedNow())
	if err != nil {
		t.Fatalf("ScanExpired: %v", err)
	}
	want := []int{0, 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v (future/unparseable must never be flagged)", got, want)
	}
}

func TestScanExpiredEmptySnapshotSkipsGeneration(t *testing.T) {
	p := &scriptedProvider{reply: `{"expiredIndices":[]}`}
	s := NewScanner(testGateway(p))

	got, err := s.ScanExpired(context.Background(), nil, fixedNow())
	if err != nil {
		t.Fatalf("ScanExpired: %v", err)
	}
	if len(got) != 0 || len(p.prompts) != 0 {
		t.Errorf("expected no generation call and empty result, got %v after %d calls", got, len(p.prompts))
	}
}

func TestScanExpiredMalformedReplyIsEmpty(t *testing.T) {
	p := &scriptedProvider{reply: `not json`}
	s := NewScanner(testGateway(p))

	got, err := s.ScanExpired(context.Background(), resolverRows, fixedNow())
	if err != nil {
		t.Fatalf("ScanExpired: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}
