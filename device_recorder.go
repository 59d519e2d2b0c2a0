package retrievedevices

import (
	"context"
	"strings"
	"time"

	"github.com/builtbyproxy/retrieve-devices/internal/env"
	"github.com/builtbyproxy/retrieve-devices/internal/feishusdk"
	"github.com/rs/zerolog/log"
)

// DeviceRecorder mirrors a fetched device list somewhere outside the lane.
// Failures are logged by the caller and never fail a run.
type DeviceRecorder interface {
	RecordDevices(ctx context.Context, devices []Device) error
}

type noopRecorder struct{}

func (noopRecorder) RecordDevices(context.Context, []Device) error { return nil }

// deviceRecordCreator is the subset of feishusdk.Client used here.
type deviceRecordCreator interface {
	CreateDeviceRecords(ctx context.Context, rawURL string, fields feishusdk.DeviceFields, records []feishusdk.DeviceRecordInput) ([]string, error)
}

// feishuDeviceRecorder appends each fetched device to a Feishu bitable.
type feishuDeviceRecorder struct {
	client deviceRecordCreator
	url    string
	fields feishusdk.DeviceFields
	clock  func() time.Time
}

// NewDeviceRecorderFromEnv builds a DeviceRecorder using environment variables.
//
// Environment:
//   - DEVICE_BITABLE_URL: target table for device snapshots; when empty,
//     a no-op recorder is returned.
//   - FEISHU_APP_ID / FEISHU_APP_SECRET: required when the URL is set.
func NewDeviceRecorderFromEnv() (DeviceRecorder, error) {
	url := strings.TrimSpace(env.String(feishusdk.EnvDeviceBitableURL, ""))
	if url == "" {
		return noopRecorder{}, nil
	}
	cli, err := feishusdk.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	return &feishuDeviceRecorder{
		client: cli,
		url:    url,
		fields: feishusdk.DeviceFieldsFromEnv(),
	}, nil
}

func (r *feishuDeviceRecorder) RecordDevices(ctx context.Context, devices []Device) error {
	if r == nil || r.client == nil || r.url == "" || len(devices) == 0 {
		return nil
	}
	now := r.now()
	records := make([]feishusdk.DeviceRecordInput, 0, len(devices))
	for i, d := range devices {
		records = append(records, feishusdk.DeviceRecordInput{
			Name:      d.Name,
			UDID:      d.UDID,
			Number:    i + 1,
			FetchedAt: now,
		})
	}
	ids, err := r.client.CreateDeviceRecords(ctx, r.url, r.fields, records)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(ids)).Msg("devices mirrored to feishu bitable")
	return nil
}

func (r *feishuDeviceRecorder) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now()
}
