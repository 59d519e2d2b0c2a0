package retrievedevices

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/builtbyproxy/retrieve-devices/internal/lanectx"
	"github.com/pkg/errors"
)

// Lane is the state shared by the steps of one pipeline run: persisted
// values in a lanectx.Store plus the in-process authenticated session.
type Lane struct {
	store lanectx.Store

	mu      sync.Mutex
	session DeviceLister
}

// NewLane wraps store; a nil store keeps values in memory.
func NewLane(store lanectx.Store) *Lane {
	if store == nil {
		store = lanectx.NewMemoryStore()
	}
	return &Lane{store: store}
}

// Session returns the session installed by an earlier step, if any.
func (l *Lane) Session() DeviceLister {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// SetSession installs the session for later steps of this process.
func (l *Lane) SetSession(s DeviceLister) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = s
}

// PublishDevices stores devices under DEVICES_FOR_APPLE_CERTIFICATE.
func (l *Lane) PublishDevices(ctx context.Context, devices []Device) error {
	if devices == nil {
		devices = []Device{}
	}
	return l.setJSON(ctx, SharedDevicesForAppleCertificate, devices)
}

// Devices reads the list published by PublishDevices.
func (l *Lane) Devices(ctx context.Context) ([]Device, bool, error) {
	var devices []Device
	ok, err := l.getJSON(ctx, SharedDevicesForAppleCertificate, &devices)
	return devices, ok, err
}

// APIKey reads an API key mapping published by an earlier step.
func (l *Lane) APIKey(ctx context.Context) (map[string]any, bool, error) {
	var values map[string]any
	ok, err := l.getJSON(ctx, SharedAppStoreConnectAPIKey, &values)
	return values, ok && len(values) > 0, err
}

// SetAPIKey publishes an API key mapping for later steps.
func (l *Lane) SetAPIKey(ctx context.Context, values map[string]any) error {
	return l.setJSON(ctx, SharedAppStoreConnectAPIKey, values)
}

// Value returns the raw JSON stored under key.
func (l *Lane) Value(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return json.RawMessage(raw), true, nil
}

// Keys lists every stored key.
func (l *Lane) Keys(ctx context.Context) ([]string, error) {
	return l.store.Keys(ctx)
}

// Close releases the underlying store.
func (l *Lane) Close() error {
	return l.store.Close()
}

func (l *Lane) setJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "lane: encode %s", key)
	}
	if err := l.store.Set(ctx, key, raw); err != nil {
		return errors.Wrapf(err, "lane: store %s", key)
	}
	return nil
}

func (l *Lane) getJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "lane: load %s", key)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "lane: decode %s", key)
	}
	return true, nil
}
