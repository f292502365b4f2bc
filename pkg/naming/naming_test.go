package naming

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/logflow/processlens/pkg/community"
	perrors "github.com/logflow/processlens/pkg/errors"
)

func partition(t *testing.T) *community.Partition {
	t.Helper()
	p, err := community.NewPartition(map[int][]string{
		0: {"Create PO", "Approve PO"},
		1: {"Receive Goods"},
		2: {"Pay Invoice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNameAll_IsolatesFailures(t *testing.T) {
	namer := NamerFunc(func(ctx context.Context, id int, activities []string) (string, error) {
		switch id {
		case 0:
			return "  \"Purchasing\"\nextra line", nil
		case 1:
			return "", errors.New("quota exceeded")
		default:
			panic("namer bug")
		}
	})

	var progress int32
	names, warnings := NameAll(context.Background(), namer, partition(t),
		WithProgress(func(done, total int) { atomic.AddInt32(&progress, 1) }))

	if names.Get(0) != "Purchasing" {
		t.Errorf("name 0 = %q", names.Get(0))
	}
	if names.Get(1) != "Subprocess 1" || names.Get(2) != "Subprocess 2" {
		t.Errorf("failed communities should fall back: %v", names)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	for _, w := range warnings {
		if w.Code != perrors.CodeNamingFailed {
			t.Errorf("warning code = %s", w.Code)
		}
	}
	if progress != 3 {
		t.Errorf("progress called %d times", progress)
	}
}

func TestNameAll_Timeout(t *testing.T) {
	slow := NamerFunc(func(ctx context.Context, id int, _ []string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	names, warnings := NameAll(context.Background(), slow, partition(t), WithTimeout(10*time.Millisecond))
	if len(warnings) != 3 || names.Get(2) != "Subprocess 2" {
		t.Errorf("timeouts should fall back: %v %v", names, warnings)
	}
}

func TestNameAll_NilNamer(t *testing.T) {
	names, warnings := NameAll(context.Background(), nil, partition(t))
	if warnings != nil || len(names) != 3 || names.Get(0) != "Subprocess 0" {
		t.Errorf("nil namer: %v %v", names, warnings)
	}
	if (Names{}).Get(7) != "Subprocess 7" {
		t.Error("Get should fall back for unknown ids")
	}
}

func TestClean(t *testing.T) {
	if _, err := clean(" ** "); err == nil {
		t.Error("blank name should fail")
	}
	long := strings.Repeat("x", 100)
	if got, _ := clean(long); len(got) != maxNameRunes {
		t.Errorf("long name not capped: %d", len(got))
	}
}

func TestGeminiNamer(t *testing.T) {
	var gotPrompt, gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			gotPrompt = req.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" Procurement Approval \n"}]}}]}`))
	}))
	defer srv.Close()

	n, err := NewGeminiNamer(GeminiConfig{APIKey: "k", Endpoint: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	name, err := n.Name(context.Background(), 0, []string{"Create PO", "Approve PO"})
	if err != nil {
		t.Fatal(err)
	}
	if name != "Procurement Approval" {
		t.Errorf("name = %q", name)
	}
	if gotKey != "k" || gotPath != "/v1beta/models/gemini-2.5-flash:generateContent" {
		t.Errorf("key %q path %q", gotKey, gotPath)
	}
	if !strings.Contains(gotPrompt, "Create PO, Approve PO") || !strings.Contains(gotPrompt, "max 4 words") {
		t.Errorf("prompt = %q", gotPrompt)
	}
}

func TestGeminiNamer_Errors(t *testing.T) {
	if _, err := NewGeminiNamer(GeminiConfig{}); !perrors.IsCode(err, perrors.CodeNamingFailed) {
		t.Errorf("missing key error = %v", err)
	}

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	n, _ := NewGeminiNamer(GeminiConfig{APIKey: "k", Endpoint: srv.URL})
	for i := 0; i < 5; i++ {
		if _, err := n.Name(context.Background(), i, []string{"a"}); err == nil {
			t.Fatal("expected error")
		}
	}
	if calls != 3 {
		t.Errorf("breaker should stop calls after 3 failures, server saw %d", calls)
	}
}
