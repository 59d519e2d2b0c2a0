package feishusdk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/builtbyproxy/retrieve-devices/internal/env"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	"github.com/pkg/errors"
)

// maxBatchCreate is the bitable batch_create limit per request.
const maxBatchCreate = 500

// DeviceFields lists the column names of the device mirror table.
type DeviceFields struct {
	Name      string
	UDID      string
	Number    string
	FetchedAt string
}

// DefaultDeviceFields matches the column names of the shared template table.
var DefaultDeviceFields = DeviceFields{
	Name:      "Name",
	UDID:      "UDID",
	Number:    "Number",
	FetchedAt: "FetchedAt",
}

// DeviceFieldsFromEnv applies DEVICE_FIELD_* overrides to the defaults.
func DeviceFieldsFromEnv() DeviceFields {
	return DeviceFields{
		Name:      env.String("DEVICE_FIELD_NAME", DefaultDeviceFields.Name),
		UDID:      env.String("DEVICE_FIELD_UDID", DefaultDeviceFields.UDID),
		Number:    env.String("DEVICE_FIELD_NUMBER", DefaultDeviceFields.Number),
		FetchedAt: env.String("DEVICE_FIELD_FETCHED_AT", DefaultDeviceFields.FetchedAt),
	}
}

// DeviceRecordInput is one row of the mirror table.
type DeviceRecordInput struct {
	Name      string
	UDID      string
	Number    int
	FetchedAt time.Time
}

// CreateDeviceRecords appends one row per device and returns the created
// record ids in input order.
func (c *Client) CreateDeviceRecords(ctx context.Context, rawURL string, fields DeviceFields, records []DeviceRecordInput) (ids []string, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "create device records failed")
		}
	}()
	if c == nil || c.bitableAPI == nil {
		return nil, errors.New("feishu: client is nil")
	}
	if len(records) == 0 {
		return nil, nil
	}
	ref, err := ParseBitableURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := c.ensureAppToken(ctx, &ref); err != nil {
		return nil, err
	}

	payloads := buildDeviceRecordPayloads(records, fields)
	ids = make([]string, 0, len(payloads))
	for start := 0; start < len(payloads); start += maxBatchCreate {
		end := start + maxBatchCreate
		if end > len(payloads) {
			end = len(payloads)
		}
		batchIDs, err := c.batchCreate(ctx, ref, payloads[start:end])
		if err != nil {
			return ids, err
		}
		ids = append(ids, batchIDs...)
	}
	return ids, nil
}

func (c *Client) batchCreate(ctx context.Context, ref BitableRef, payloads []map[string]any) ([]string, error) {
	items := make([]*larkbitable.AppTableRecord, 0, len(payloads))
	for _, fields := range payloads {
		items = append(items, larkbitable.NewAppTableRecordBuilder().
			Fields(fields).
			Build(),
		)
	}
	body := larkbitable.NewBatchCreateAppTableRecordReqBodyBuilder().
		Records(items).
		Build()

	resp, err := c.bitableAPI.BatchCreate(ctx, ref.AppToken, ref.TableID, body)
	if err != nil {
		return nil, fmt.Errorf("feishu: batch create request failed: %w", err)
	}
	if resp == nil || resp.ApiResp == nil {
		return nil, errors.New("feishu: empty response when batch creating records")
	}
	if err := ensureSDKSuccess("batch create records", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.New("feishu: batch create response missing data")
	}
	ids := make([]string, 0, len(resp.Data.Records))
	for _, rec := range resp.Data.Records {
		if rec == nil {
			continue
		}
		id := strings.TrimSpace(larkcore.StringValue(rec.RecordId))
		if id == "" {
			return nil, errors.New("feishu: batch create response missing record id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildDeviceRecordPayloads(records []DeviceRecordInput, fields DeviceFields) []map[string]any {
	result := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := map[string]any{
			fields.Name: rec.Name,
			fields.UDID: rec.UDID,
		}
		if fields.Number != "" {
			row[fields.Number] = rec.Number
		}
		if fields.FetchedAt != "" && !rec.FetchedAt.IsZero() {
			// bitable datetime columns take epoch milliseconds
			row[fields.FetchedAt] = rec.FetchedAt.UnixMilli()
		}
		result = append(result, row)
	}
	return result
}
