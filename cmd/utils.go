package main

import (
	"strings"

	retrievedevices "github.com/builtbyproxy/retrieve-devices"
	"github.com/builtbyproxy/retrieve-devices/internal/lanectx"
)

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// openLane opens the SQLite lane store selected by --lane-db and --lane-run.
func openLane() (*retrievedevices.Lane, *lanectx.SQLiteStore, error) {
	store, err := lanectx.OpenSQLite(rootLaneDB, lanectx.SQLiteOptions{RunID: rootLaneRun})
	if err != nil {
		return nil, nil, err
	}
	return retrievedevices.NewLane(store), store, nil
}
