package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/parser"
)

type stubObjects map[string]string

func (s stubObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := s[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		wantErr bool
	}{
		{"s3://logs/2024/p2p.csv", Location{Scheme: SchemeS3, Bucket: "logs", Path: "2024/p2p.csv"}, false},
		{"file:///tmp/x.xes", Location{Scheme: SchemeFile, Path: "/tmp/x.xes"}, false},
		{"data/log.csv", Location{Scheme: SchemeFile, Path: "data/log.csv"}, false},
		{"s3://bucket-only", Location{}, true},
		{"", Location{}, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v", tt.uri, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.uri, got, tt.want)
		}
	}

	loc, _ := Parse("s3://logs/a/b.parquet")
	if loc.Format() != parser.FormatParquet || loc.String() != "s3://logs/a/b.parquet" {
		t.Errorf("Format() = %s, String() = %s", loc.Format(), loc)
	}
}

func TestResolver_S3(t *testing.T) {
	r := NewResolver(DefaultS3Config()).WithObjectClient(stubObjects{
		"logs/p2p.csv": "case,activity,time\n1,A,2024-01-01\n",
	})

	tbl, err := r.Load(context.Background(), "s3://logs/p2p.csv", parser.DefaultConfig())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.NumRows() != 1 || tbl.Cell(0, 1) != "A" {
		t.Errorf("unexpected table: %d rows, %v", tbl.NumRows(), tbl.Row(0))
	}

	_, err = r.Load(context.Background(), "s3://logs/missing.csv", parser.DefaultConfig())
	if !perrors.IsCode(err, perrors.CodeFileNotFound) {
		t.Errorf("missing object error = %v", err)
	}

	_, err = r.Load(context.Background(), "s3://logs/p2p.docx", parser.DefaultConfig())
	if !perrors.IsCode(err, perrors.CodeInvalidFormat) {
		t.Errorf("unknown extension error = %v", err)
	}
}

func TestResolver_Local(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.csv")
	if err := os.WriteFile(path, []byte("case,activity\n1,A\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(DefaultS3Config())
	tbl, err := r.Load(context.Background(), path, parser.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if tbl.NumColumns() != 2 {
		t.Errorf("NumColumns() = %d", tbl.NumColumns())
	}

	loc, _ := Parse(filepath.Join(dir, "none.csv"))
	if _, err := r.Open(context.Background(), loc); !perrors.IsCode(err, perrors.CodeFileNotFound) {
		t.Errorf("Open missing = %v", err)
	}
}
