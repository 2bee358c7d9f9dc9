// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package viz

import (
	"context"
	"fmt"

	"github.com/AleutianAI/stagewalk/callgraph"
)

// graphHTMLTemplate wraps D3 graph JSON in a self-contained HTML page
// with a force-directed layout.
func graphHTMLTemplate(d3JSON string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Stage Call Graph</title>
  <script src="https://d3js.org/d3.v7.min.js"></script>
  <style>
    body { margin: 0; font-family: Arial, sans-serif; }
    svg { width: 100%%; height: 100vh; }
    .node circle { stroke: #333; stroke-width: 1.5px; }
    .node text { font-size: 12px; }
    .link { stroke: #999; stroke-opacity: 0.6; }
    .node.update circle { fill: #ffd93d; }
    .node.input circle { fill: #10ac84; }
  </style>
</head>
<body>
  <svg></svg>
  <script>
    const data = %s;

    const width = window.innerWidth;
    const height = window.innerHeight;

    const svg = d3.select("svg");

    const simulation = d3.forceSimulation(data.nodes)
      .force("link", d3.forceLink(data.links).id(d => d.id).distance(100))
      .force("charge", d3.forceManyBody().strength(-200))
      .force("center", d3.forceCenter(width / 2, height / 2));

    const link = svg.append("g")
      .selectAll("line")
      .data(data.links)
      .join("line")
      .attr("class", "link");

    const node = svg.append("g")
      .selectAll("g")
      .data(data.nodes)
      .join("g")
      .attr("class", d => "node " + d.kind)
      .call(d3.drag()
        .on("start", dragstarted)
        .on("drag", dragged)
        .on("end", dragended));

    node.append("circle")
      .attr("r", d => d.kind === "input" ? 8 : 12)
      .attr("fill", d => {
        if (d.kind === "update") return "#ffd93d";
        if (d.kind === "input") return "#10ac84";
        return "#74b9ff";
      });

    node.append("text")
      .attr("dx", 15)
      .attr("dy", 4)
      .text(d => d.name);

    simulation.on("tick", () => {
      link
        .attr("x1", d => d.source.x)
        .attr("y1", d => d.source.y)
        .attr("x2", d => d.target.x)
        .attr("y2", d => d.target.y);

      node.attr("transform", d => "translate(" + d.x + "," + d.y + ")");
    });

    function dragstarted(event) {
      if (!event.active) simulation.alphaTarget(0.3).restart();
      event.subject.fx = event.subject.x;
      event.subject.fy = event.subject.y;
    }

    function dragged(event) {
      event.subject.fx = event.x;
      event.subject.fy = event.y;
    }

    function dragended(event) {
      if (!event.active) simulation.alphaTarget(0);
      event.subject.fx = null;
      event.subject.fy = null;
    }
  </script>
</body>
</html>`, d3JSON)
}

// InteractiveHTML generates a complete interactive HTML visualization
// of a call graph.
func (r *Renderer) InteractiveHTML(ctx context.Context, g *callgraph.Graph) (string, error) {
	d3JSON, err := r.Render(ctx, g, FormatD3)
	if err != nil {
		return "", err
	}
	return graphHTMLTemplate(d3JSON), nil
}
