package dag

import (
	"os"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/prateekvishnu/bee/tangle/vertex"
)

var (
	fontsizeAttribute = graph.VertexAttribute("fontsize", "10")

	unsolidNodeAttributes = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "blues3"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "2"),
		graph.VertexAttribute("fillcolor", "1"),
	}
	solidNodeAttributes = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "bugn9"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "9"),
		graph.VertexAttribute("fillcolor", "1"),
	}
	confirmedNodeAttributes = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "accent8"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "2"),
		graph.VertexAttribute("fillcolor", "1"),
	}
	conflictNodeAttributes = []func(*graph.VertexProperties){
		fontsizeAttribute,
		graph.VertexAttribute("colorscheme", "set19"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("color", "1"),
		graph.VertexAttribute("fillcolor", "1"),
	}
)

func nodeAttributes(v *vertex.Vertex) []func(*graph.VertexProperties) {
	switch {
	case v.IsConflicting():
		return conflictNodeAttributes
	case v.IsConfirmed():
		return confirmedNodeAttributes
	case v.IsSolid():
		return solidNodeAttributes
	}
	return unsolidNodeAttributes
}

// MakeGraph renders the current tangle as a directed acyclic graph,
// edges pointing from child to approved parent
func (d *DAG) MakeGraph() graph.Graph[string, string] {
	ret := graph.New(graph.StringHash, graph.Directed(), graph.Acyclic())

	d.ForEachVertex(func(v *vertex.Vertex) bool {
		_ = ret.AddVertex(v.ID.StringShort(), nodeAttributes(v)...)
		return true
	})
	d.ForEachVertex(func(v *vertex.Vertex) bool {
		trunk, branch := v.Parents()
		_ = ret.AddEdge(v.ID.StringShort(), trunk.StringShort())
		if branch != trunk {
			_ = ret.AddEdge(v.ID.StringShort(), branch.StringShort())
		}
		return true
	})
	return ret
}

func (d *DAG) SaveGraph(fname string) error {
	gr := d.MakeGraph()
	dotFile, err := os.Create(fname + ".gv")
	if err != nil {
		return err
	}
	defer func() { _ = dotFile.Close() }()

	return draw.DOT(gr, dotFile)
}
