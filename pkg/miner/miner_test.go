package miner

import (
	"context"
	"reflect"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/logflow/processlens/pkg/detect"
	"github.com/logflow/processlens/pkg/dfg"
	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/table"
	"github.com/logflow/processlens/pkg/view"
)

func scenarioTable() *table.Table {
	return table.FromStrings([]string{"Case ID", "Activity", "Timestamp"}, [][]string{
		{"1", "A", "2024-01-01 08:00"},
		{"2", "A", "2024-01-01 08:30"},
		{"1", "B", "2024-01-01 09:00"},
		{"3", "A", "2024-01-01 09:10"},
		{"2", "B", "2024-01-01 09:30"},
		{"1", "C", "2024-01-01 10:00"},
		{"3", "B", "2024-01-01 10:10"},
		{"2", "D", "2024-01-01 10:30"},
		{"3", "C", "2024-01-01 11:10"},
	})
}

func TestMine_EndToEnd(t *testing.T) {
	m := New()
	res, err := m.Mine(context.Background(), scenarioTable(), detect.Columns{}, 1.0)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}

	want := detect.Columns{CaseID: "Case ID", Activity: "Activity", Timestamp: "Timestamp"}
	if res.Columns != want {
		t.Errorf("resolved columns = %+v", res.Columns)
	}
	wantEdges := []dfg.Edge{
		{From: "A", To: "B", Weight: 3},
		{From: "B", To: "C", Weight: 2},
		{From: "B", To: "D", Weight: 1},
	}
	if got := res.Graph.Edges(); !reflect.DeepEqual(got, wantEdges) {
		t.Errorf("edges = %v", got)
	}
	if res.Partition.Len() != 1 {
		t.Errorf("default resolution should keep one community, got %s", res.Partition)
	}
	if res.ID == "" || res.CreatedAt.IsZero() {
		t.Error("result metadata not set")
	}

	fine, err := m.Mine(context.Background(), scenarioTable(), detect.Columns{}, 3.0)
	if err != nil {
		t.Fatal(err)
	}
	if fine.Partition.Len() < 2 {
		t.Errorf("high resolution should split, got %s", fine.Partition)
	}
	ab, _ := fine.Partition.CommunityOf("A")
	if c, _ := fine.Partition.CommunityOf("C"); c == ab {
		t.Error("C should be separated from A")
	}

	v, err := res.View(view.All)
	if err != nil || !v.Graph.Equal(res.Graph) {
		t.Errorf("ALL view should be the full graph (err %v)", err)
	}
}

func TestMine_DroppedRow(t *testing.T) {
	rows := [][]string{
		{"1", "A", "01/01/2024 08:00"},
		{"1", "B", "01/01/2024 09:00"},
		{"1", "C", "01/01/2024 10:00"},
		{"2", "A", "02/01/2024 08:00"},
		{"2", "B", "garbage"},
		{"2", "C", "02/01/2024 10:00"},
		{"3", "A", "03/01/2024 08:00"},
		{"3", "B", "03/01/2024 09:00"},
		{"3", "C", "03/01/2024 10:00"},
		{"3", "D", "03/01/2024 11:00"},
	}
	tbl := table.FromStrings([]string{"case", "activity", "timestamp"}, rows)

	res, err := New().Mine(context.Background(), tbl, detect.Columns{}, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Report.Dropped() != 1 || len(res.Warnings()) != 1 {
		t.Errorf("dropped %d rows with %d warnings", res.Report.Dropped(), len(res.Warnings()))
	}
	if res.Graph.TotalWeight() != 6 {
		t.Errorf("total weight %d, want 6 from the nine valid rows", res.Graph.TotalWeight())
	}
	if w, _ := res.Graph.Weight("A", "C"); w != 1 {
		t.Errorf("case 2 should go A->C once the bad row is dropped, got %d", w)
	}
}

func TestMine_Cache(t *testing.T) {
	m := New(WithCache(NewCache(4, time.Hour)))
	ctx := context.Background()

	first, err := m.Mine(ctx, scenarioTable(), detect.Columns{}, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := m.Mine(ctx, scenarioTable(), detect.Columns{}, 1.0)
	if second.ID != first.ID {
		t.Error("identical request should be served from cache")
	}
	other, _ := m.Mine(ctx, scenarioTable(), detect.Columns{}, 1.5)
	if other.ID == first.ID {
		t.Error("different resolution must not hit the cache")
	}

	if s := m.CacheStats(); s.Hits != 1 || s.Misses != 2 || s.Entries != 2 {
		t.Errorf("CacheStats() = %+v", s)
	}

	m.Invalidate()
	third, _ := m.Mine(ctx, scenarioTable(), detect.Columns{}, 1.0)
	if third.ID == first.ID {
		t.Error("invalidated result served again")
	}
}

func TestMine_NoCache(t *testing.T) {
	m := New(WithCache(nil))
	a, _ := m.Mine(context.Background(), scenarioTable(), detect.Columns{}, 1.0)
	b, _ := m.Mine(context.Background(), scenarioTable(), detect.Columns{}, 1.0)
	if a.ID == b.ID {
		t.Error("without a cache each run is new")
	}
	if !a.Partition.Equal(b.Partition) {
		t.Error("mining is not deterministic")
	}
}

func TestMine_Errors(t *testing.T) {
	ctx := context.Background()
	m := New()

	if _, err := m.Mine(ctx, table.New(nil, nil), detect.Columns{}, 1); !perrors.IsCode(err, perrors.CodeNoColumns) {
		t.Errorf("no columns: %v", err)
	}

	cols := detect.Columns{CaseID: "Case ID", Activity: "nope", Timestamp: "Timestamp"}
	if _, err := m.Mine(ctx, scenarioTable(), cols, 1); !perrors.IsCode(err, perrors.CodeMissingColumn) {
		t.Errorf("missing column: %v", err)
	}

	if _, err := m.Mine(ctx, scenarioTable(), detect.Columns{}, -1); !perrors.IsCode(err, perrors.CodeInvalidResolution) {
		t.Errorf("bad resolution: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.Mine(canceled, scenarioTable(), detect.Columns{}, 1); !perrors.IsCode(err, perrors.CodeContextCanceled) {
		t.Errorf("canceled: %v", err)
	}
}

func TestMine_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	m := New(WithTracer(tp.Tracer("test")))
	if _, err := m.Mine(context.Background(), scenarioTable(), detect.Columns{}, 1); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	want := []string{"miner.normalize", "miner.build_dfg", "miner.decompose", "miner.Mine"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("spans = %v, want %v", names, want)
	}
}

func TestResolveColumns_KeepsExplicit(t *testing.T) {
	tbl := table.FromStrings([]string{"case", "task", "time", "status"}, nil)
	got, err := ResolveColumns(tbl, detect.Columns{Activity: "status"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Activity != "status" || got.CaseID != "case" || got.Timestamp != "time" {
		t.Errorf("ResolveColumns = %+v", got)
	}
}

func TestCache_EvictsOldest(t *testing.T) {
	c := NewCache(2, 0)
	keys := []Key{{Fingerprint: "a"}, {Fingerprint: "b"}, {Fingerprint: "c"}}
	for i, k := range keys {
		c.Put(k, &Result{ID: k.Fingerprint})
		if i == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	if _, ok := c.Get(keys[0]); ok {
		t.Error("oldest entry should be evicted")
	}
	if r, ok := c.Get(keys[2]); !ok || r.ID != "c" {
		t.Error("newest entry missing")
	}

	c.Invalidate(keys[2])
	if _, ok := c.Get(keys[2]); ok {
		t.Error("Invalidate did not remove the entry")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(1, time.Nanosecond)
	k := Key{Fingerprint: "x"}
	c.Put(k, &Result{})
	time.Sleep(time.Millisecond)
	if _, ok := c.Get(k); ok {
		t.Error("expired entry served")
	}
}
