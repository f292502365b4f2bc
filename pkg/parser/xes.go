package parser

import (
	"bufio"
	"bytes"
	"context"
	"html"
	"io"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/table"
)

// XES column names. Trace attributes other than the case name are prefixed
// with "case:" the way XES-to-table conversions usually do.
const (
	XESCaseColumn     = "case:concept:name"
	XESActivityColumn = "concept:name"
	XESTimeColumn     = "time:timestamp"
	xesCasePrefix     = "case:"
)

var (
	xesConceptName = []byte("concept:name")
	xmlTrace       = []byte("trace")
	xmlEvent       = []byte("event")
	xmlAttrTags    = [][]byte{
		[]byte("string"), []byte("date"), []byte("int"),
		[]byte("float"), []byte("boolean"), []byte("id"),
	}
)

type xesState uint8

const (
	xesOutside xesState = iota
	xesInTrace
	xesInEvent
)

// XESLoader flattens an XES log into one row per event. It scans tags with
// a small state machine instead of building a DOM; children of list and
// container attributes are flattened into the event.
type XESLoader struct {
	cfg Config
}

// NewXESLoader creates an XES loader.
func NewXESLoader(cfg Config) *XESLoader {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &XESLoader{cfg: cfg}
}

// Load implements Loader.
func (l *XESLoader) Load(ctx context.Context, r io.Reader) (*table.Table, error) {
	reader := bufio.NewReaderSize(r, l.cfg.BufferSize)

	cols := newColumnSet(XESCaseColumn, XESActivityColumn, XESTimeColumn)
	var rows []map[string]string

	state := xesOutside
	traceAttrs := map[string]string{}
	var event map[string]string

	for {
		if err := canceled(ctx, FormatXES); err != nil {
			return nil, err
		}
		if l.cfg.limitReached(len(rows)) {
			break
		}

		tag, err := reader.ReadBytes('>')
		if err != nil && err != io.EOF {
			return nil, perrors.Wrap(err, perrors.CodeParseFailed, "cannot read XES")
		}
		if i := bytes.IndexByte(tag, '<'); i >= 0 {
			tag = tag[i:]
		} else {
			tag = nil
		}

		switch {
		case len(tag) == 0:
		case isOpenTag(tag, xmlTrace):
			state = xesInTrace
			traceAttrs = map[string]string{}
		case isCloseTag(tag, xmlTrace):
			state = xesOutside
		case isOpenTag(tag, xmlEvent):
			state = xesInEvent
			event = make(map[string]string, len(traceAttrs)+4)
			for k, v := range traceAttrs {
				event[k] = v
			}
			if isSelfClosing(tag) {
				rows = append(rows, event)
				state = xesInTrace
			}
		case isCloseTag(tag, xmlEvent):
			if event != nil {
				rows = append(rows, event)
				event = nil
			}
			state = xesInTrace
		case isAttributeTag(tag):
			key, value := extractAttribute(tag)
			if key == "" {
				break
			}
			switch state {
			case xesInTrace:
				name := xesCasePrefix + key
				traceAttrs[name] = value
				cols.add(name)
			case xesInEvent:
				event[key] = value
				cols.add(key)
			}
		}

		if err == io.EOF {
			break
		}
	}

	data := make([][]string, len(rows))
	for i, ev := range rows {
		row := make([]string, len(cols.names))
		for j, name := range cols.names {
			row[j] = ev[name]
		}
		data[i] = row
	}
	return table.FromStrings(cols.names, data), nil
}

// columnSet keeps column names in first-seen order.
type columnSet struct {
	names []string
	seen  map[string]bool
}

func newColumnSet(names ...string) *columnSet {
	s := &columnSet{seen: make(map[string]bool)}
	for _, n := range names {
		s.add(n)
	}
	return s
}

func (s *columnSet) add(name string) {
	if !s.seen[name] {
		s.seen[name] = true
		s.names = append(s.names, name)
	}
}

// isOpenTag checks if tag opens element.
func isOpenTag(tag, element []byte) bool {
	if len(tag) < len(element)+2 || tag[0] != '<' || !bytes.HasPrefix(tag[1:], element) {
		return false
	}
	next := 1 + len(element)
	if next >= len(tag) {
		return true
	}
	c := tag[next]
	return c == '>' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/'
}

// isCloseTag checks if tag is </element>.
func isCloseTag(tag, element []byte) bool {
	return len(tag) >= len(element)+3 && tag[0] == '<' && tag[1] == '/' &&
		bytes.HasPrefix(tag[2:], element)
}

func isSelfClosing(tag []byte) bool {
	return len(tag) >= 2 && tag[len(tag)-2] == '/'
}

// isAttributeTag checks if tag is an XES attribute element.
func isAttributeTag(tag []byte) bool {
	for _, name := range xmlAttrTags {
		if isOpenTag(tag, name) {
			return true
		}
	}
	return false
}

// extractAttribute returns the key and value of an attribute element.
func extractAttribute(tag []byte) (string, string) {
	key := extractAttrValue(tag, []byte(`key="`))
	if key == nil {
		return "", ""
	}
	value := extractAttrValue(tag, []byte(`value="`))
	return html.UnescapeString(string(key)), html.UnescapeString(string(value))
}

// extractAttrValue extracts an XML attribute value.
func extractAttrValue(tag, prefix []byte) []byte {
	idx := bytes.Index(tag, prefix)
	if idx < 0 {
		return nil
	}
	start := idx + len(prefix)
	end := bytes.IndexByte(tag[start:], '"')
	if end < 0 {
		return nil
	}
	return tag[start : start+end]
}
