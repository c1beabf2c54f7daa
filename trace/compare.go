package trace

import "github.com/relaydev/relay"

// Report summarizes how a replayed run diverged from the original.
type Report struct {
	// SequenceMatch is true when both runs visited the same nodes in
	// the same order.
	SequenceMatch bool `json:"sequence_match"`
	// ToolsMatch is true when both runs requested the same tools in
	// the same order.
	ToolsMatch bool `json:"tools_match"`

	OriginalNodes []string `json:"original_nodes"`
	ReplayNodes   []string `json:"replay_nodes"`
	OriginalTools []string `json:"original_tools"`
	ReplayTools   []string `json:"replay_tools"`
}

// Compare diffs two recorded runs on their node sequence and tool usage.
func Compare(original, replay []Event) Report {
	r := Report{
		OriginalNodes: eventNames(original, relay.KindNodeEnter),
		ReplayNodes:   eventNames(replay, relay.KindNodeEnter),
		OriginalTools: eventNames(original, relay.KindToolRequest),
		ReplayTools:   eventNames(replay, relay.KindToolRequest),
	}
	r.SequenceMatch = equalSeq(r.OriginalNodes, r.ReplayNodes)
	r.ToolsMatch = equalSeq(r.OriginalTools, r.ReplayTools)
	return r
}

func eventNames(events []Event, kind string) []string {
	var names []string
	for _, ev := range events {
		if ev.Kind == kind {
			names = append(names, ev.Name)
		}
	}
	return names
}

func equalSeq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
