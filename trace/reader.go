package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// maxLineBytes bounds a single journal line. Values are truncated at
// write time, but a prompt with many messages can still be large.
const maxLineBytes = 4 << 20

// ReadRun loads every event of one run, in file order.
func ReadRun(dir, sessionID, runID string) ([]Event, error) {
	return readFile(filepath.Join(dir, sessionID, runID+".jsonl"))
}

// ReadSession loads every event of every run in a session, ordered by
// run id then file order. UUIDv7 and reproducible run ids both sort
// usefully here.
func ReadSession(dir, sessionID string) ([]Event, error) {
	pattern := filepath.Join(dir, sessionID, "*.jsonl")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var events []Event
	for _, f := range files {
		evs, err := readFile(f)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

func readFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
