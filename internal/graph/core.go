package graph

// DefaultCoreDeviceK is the number of distinct shortest dependency paths a
// Device must sit on, between a critical Application and one of its serving
// devices, to be flagged core.
const DefaultCoreDeviceK = 2

func nodeCriticality(node Node) string {
	c, _ := node.Properties["criticality"].(string)
	return c
}

// RecomputeCoreDevices derives the is_core set: every Device that lies on
// at least minK distinct shortest dependency paths between a critical
// Application and one of its serving devices (a Device the Application
// depends on, directly or transitively, via DEPENDS_ON edges). It reads
// snap only and returns the qualifying node ids; callers persist the
// result by upserting Properties["is_core"] back onto the store.
func RecomputeCoreDevices(snap Snapshot, minK int) map[string]bool {
	pathHits := make(map[string]int)

	for _, app := range snap.Nodes {
		if app.Kind != NodeApplication || nodeCriticality(app) != "critical" {
			continue
		}
		for _, deviceID := range servingDevices(snap, app.ID) {
			for _, path := range shortestDependencyPaths(snap, app.ID, deviceID) {
				for _, nodeID := range path {
					if nodeID == app.ID {
						continue
					}
					if n, ok := snap.Nodes[nodeID]; ok && n.Kind == NodeDevice {
						pathHits[nodeID]++
					}
				}
			}
		}
	}

	core := make(map[string]bool, len(pathHits))
	for id, hits := range pathHits {
		if hits >= minK {
			core[id] = true
		}
	}
	return core
}

// servingDevices returns the terminal Device nodes in appID's DEPENDS_ON
// closure: devices the application ultimately depends on that have no
// further outgoing DEPENDS_ON edge of their own. Intermediate devices on
// the way there are credited by shortestDependencyPaths as it walks each
// path to a serving device, not counted as serving devices themselves.
func servingDevices(snap Snapshot, appID string) []string {
	visited := Walk(snap, []string{appID}, Forward, map[EdgeKind]bool{EdgeDependsOn: true}, -1)

	var devices []string
	for _, v := range visited {
		if v.NodeID == appID {
			continue
		}
		n, ok := snap.Nodes[v.NodeID]
		if !ok || n.Kind != NodeDevice {
			continue
		}
		if hasOutgoingDependsOn(snap, v.NodeID) {
			continue
		}
		devices = append(devices, v.NodeID)
	}
	return devices
}

func hasOutgoingDependsOn(snap Snapshot, nodeID string) bool {
	for _, edge := range snap.Out[nodeID] {
		if edge.Kind == EdgeDependsOn {
			return true
		}
	}
	return false
}

// shortestDependencyPaths enumerates every distinct shortest path from src
// to dst over DEPENDS_ON edges, by BFS-layering the graph into a shortest-
// path DAG and then walking that DAG backward from dst to src.
func shortestDependencyPaths(snap Snapshot, src, dst string) [][]string {
	if src == dst {
		return nil
	}

	depth := map[string]int{src: 0}
	parents := map[string][]string{}
	queue := []string{src}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, edge := range snap.Out[cur] {
			if edge.Kind != EdgeDependsOn {
				continue
			}
			next := edge.ToNodeID
			nd, seen := depth[next]
			switch {
			case !seen:
				depth[next] = depth[cur] + 1
				parents[next] = []string{cur}
				queue = append(queue, next)
			case nd == depth[cur]+1:
				parents[next] = append(parents[next], cur)
			}
		}
	}

	if _, ok := depth[dst]; !ok {
		return nil
	}

	var paths [][]string
	var walk func(node string, suffix []string)
	walk = func(node string, suffix []string) {
		path := append([]string{node}, suffix...)
		if node == src {
			paths = append(paths, path)
			return
		}
		for _, p := range parents[node] {
			walk(p, path)
		}
	}
	walk(dst, nil)

	return paths
}
