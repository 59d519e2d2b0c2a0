package retrievedevices

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/builtbyproxy/retrieve-devices/internal/lanectx"
)

func TestLanePersistsAcrossStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lane.sqlite")

	store, err := lanectx.OpenSQLite(path, lanectx.SQLiteOptions{RunID: "pipeline-7"})
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	lane := NewLane(store)
	devices := []Device{{Name: "iPhone 12", UDID: "AAA111"}}
	if err := lane.PublishDevices(ctx, devices); err != nil {
		t.Fatalf("PublishDevices error: %v", err)
	}
	if err := lane.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	store, err = lanectx.OpenSQLite(path, lanectx.SQLiteOptions{RunID: "pipeline-7"})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	lane = NewLane(store)
	defer lane.Close()
	got, ok, err := lane.Devices(ctx)
	if err != nil || !ok {
		t.Fatalf("expected devices after reopen, ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0] != devices[0] {
		t.Fatalf("unexpected devices %+v", got)
	}
	keys, err := lane.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != SharedDevicesForAppleCertificate {
		t.Fatalf("unexpected keys %v err=%v", keys, err)
	}
}

func TestLaneNewRunIgnoresPreviousAPIKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "lane.sqlite")

	store, err := lanectx.OpenSQLite(path, lanectx.SQLiteOptions{RunID: "yesterday"})
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	previous := NewLane(store)
	if err := previous.SetAPIKey(ctx, map[string]any{"key_id": "OLD", "key": "pem"}); err != nil {
		t.Fatalf("SetAPIKey error: %v", err)
	}
	previous.Close()

	store, err = lanectx.OpenSQLite(path, lanectx.SQLiteOptions{RunID: "today"})
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	lane := NewLane(store)
	defer lane.Close()
	if _, ok, err := lane.APIKey(ctx); ok || err != nil {
		t.Fatalf("new run must not see the previous api key, ok=%v err=%v", ok, err)
	}

	r, auth, _, _ := newTestRetriever(t, &fakeLister{})
	r.Lane = lane
	res, err := r.Run(ctx, Options{OutputPath: filepath.Join(dir, "devices.json")})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.AuthMode != AuthModePassword || len(auth.tokenKeys) != 0 {
		t.Fatalf("expected password login, got mode=%s keys=%+v", res.AuthMode, auth.tokenKeys)
	}
}

func TestLaneSessionIsInProcess(t *testing.T) {
	lane := NewLane(nil)
	if lane.Session() != nil {
		t.Fatalf("new lane should have no session")
	}
	s := &fakeLister{}
	lane.SetSession(s)
	if lane.Session() != DeviceLister(s) {
		t.Fatalf("session not stored")
	}
}

func TestLaneAPIKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	lane := NewLane(nil)
	if _, ok, err := lane.APIKey(ctx); ok || err != nil {
		t.Fatalf("expected no key, ok=%v err=%v", ok, err)
	}
	if err := lane.SetAPIKey(ctx, map[string]any{"key_id": "K", "duration": 300}); err != nil {
		t.Fatalf("SetAPIKey error: %v", err)
	}
	values, ok, err := lane.APIKey(ctx)
	if err != nil || !ok || values["key_id"] != "K" {
		t.Fatalf("unexpected key %v ok=%v err=%v", values, ok, err)
	}
}
