// Package render turns a projected view into a document a graph renderer can
// draw, exported as JSON or Graphviz DOT. Rendering never touches the mining
// result.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/naming"
	"github.com/logflow/processlens/pkg/view"
)

// Palette colours communities by id, wrapping around.
var Palette = []string{
	"#241e4e", "#8fa998", "#CE6C47", "#FFD046",
	"#EADAA2", "#8fa998", "#BB8FCE", "#85C1E9",
}

// Color returns the palette colour of community id.
func Color(id int) string {
	if id < 0 {
		id = -id
	}
	return Palette[id%len(Palette)]
}

// EdgeWidth scales an edge weight to a stroke width in [1, 5].
func EdgeWidth(weight int64) float64 {
	return math.Min(1+float64(weight)/50, 5)
}

// Node is a drawable activity.
type Node struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Community int    `json:"community"`
	Group     string `json:"group"`
	Color     string `json:"color"`
	Count     int64  `json:"count"`
	Start     int64  `json:"start,omitempty"`
	End       int64  `json:"end,omitempty"`
}

// Edge is a drawable directly-follows relation.
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight int64   `json:"weight"`
	Width  float64 `json:"width"`
}

// Group is a community legend entry.
type Group struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Color   string   `json:"color"`
	Members []string `json:"members"`
}

// Document is everything needed to draw one view.
type Document struct {
	Selection string     `json:"selection"`
	Stats     view.Stats `json:"stats"`
	Groups    []Group    `json:"groups"`
	Nodes     []Node     `json:"nodes"`
	Edges     []Edge     `json:"edges"`
}

// Build lays out v. names may be nil; missing names use the default.
// Activities outside the partition get community -1.
func Build(v *view.View, names naming.Names) *Document {
	doc := &Document{
		Selection: v.Selection.String(),
		Stats:     v.Stats(),
	}

	for _, id := range v.Partition.IDs() {
		members, _ := v.Partition.Members(id)
		doc.Groups = append(doc.Groups, Group{
			ID:      id,
			Name:    names.Get(id),
			Color:   Color(id),
			Members: members,
		})
	}

	starts := v.Graph.StartActivities()
	ends := v.Graph.EndActivities()
	for _, activity := range v.Graph.Nodes() {
		n := Node{
			ID:        activity,
			Label:     activity,
			Community: -1,
			Color:     "#cccccc",
			Count:     v.Graph.ActivityCount(activity),
			Start:     starts[activity],
			End:       ends[activity],
		}
		if id, ok := v.Partition.CommunityOf(activity); ok {
			n.Community = id
			n.Group = names.Get(id)
			n.Color = Color(id)
		}
		doc.Nodes = append(doc.Nodes, n)
	}

	for _, e := range v.Graph.Edges() {
		doc.Edges = append(doc.Edges, Edge{
			From:   e.From,
			To:     e.To,
			Weight: e.Weight,
			Width:  EdgeWidth(e.Weight),
		})
	}
	return doc
}

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatDOT  Format = "dot"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "dot", "gv", "graphviz":
		return FormatDOT, nil
	}
	return "", perrors.New(perrors.CodeRenderFailed, fmt.Sprintf("unknown render format %q", s))
}

// Write encodes doc to w.
func Write(w io.Writer, doc *Document, format Format) error {
	var err error
	switch format {
	case FormatJSON:
		err = WriteJSON(w, doc)
	case FormatDOT:
		err = WriteDOT(w, doc)
	default:
		return perrors.New(perrors.CodeRenderFailed, fmt.Sprintf("unknown render format %q", format))
	}
	if err != nil {
		return perrors.Wrap(err, perrors.CodeRenderFailed, "render failed")
	}
	return nil
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteDOT writes doc as a Graphviz digraph with one cluster per community.
func WriteDOT(w io.Writer, doc *Document) error {
	var b strings.Builder
	b.WriteString("digraph processlens {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=\"rounded,filled\", fontname=\"Helvetica\"];\n")

	byGroup := make(map[int][]Node)
	for _, n := range doc.Nodes {
		byGroup[n.Community] = append(byGroup[n.Community], n)
	}
	for _, g := range doc.Groups {
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", g.ID)
		fmt.Fprintf(&b, "    label=%s;\n    color=%s;\n", quote(g.Name), quote(g.Color))
		for _, n := range byGroup[g.ID] {
			writeDOTNode(&b, "    ", n)
		}
		b.WriteString("  }\n")
	}
	// activities outside the partition
	loose := byGroup[-1]
	sort.Slice(loose, func(i, j int) bool { return loose[i].ID < loose[j].ID })
	for _, n := range loose {
		writeDOTNode(&b, "  ", n)
	}

	for _, e := range doc.Edges {
		fmt.Fprintf(&b, "  %s -> %s [label=%d, penwidth=%s];\n",
			quote(e.From), quote(e.To), e.Weight, strconv.FormatFloat(e.Width, 'f', -1, 64))
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeDOTNode(b *strings.Builder, indent string, n Node) {
	fmt.Fprintf(b, "%s%s [label=%s, fillcolor=%s, fontcolor=%s];\n",
		indent, quote(n.ID), quote(fmt.Sprintf("%s\n%d", n.Label, n.Count)),
		quote(n.Color), quote(fontColor(n.Color)))
}

// quote renders s as a DOT double-quoted string.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

// fontColor picks white text on dark fills.
func fontColor(hex string) string {
	if len(hex) != 7 || hex[0] != '#' {
		return "black"
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return "black"
	}
	r, g, bl := float64(v>>16&0xff), float64(v>>8&0xff), float64(v&0xff)
	if 0.299*r+0.587*g+0.114*bl < 128 {
		return "white"
	}
	return "black"
}
