package feishusdk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	larkwiki "github.com/larksuite/oapi-sdk-go/v3/service/wiki/v2"
)

type fakeBitableAPI struct {
	appTokens []string
	tableIDs  []string
	batches   [][]map[string]any
	code      int
}

func (f *fakeBitableAPI) BatchCreate(ctx context.Context, appToken, tableID string, body *larkbitable.BatchCreateAppTableRecordReqBody, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchCreateAppTableRecordResp, error) {
	f.appTokens = append(f.appTokens, appToken)
	f.tableIDs = append(f.tableIDs, tableID)
	batch := make([]map[string]any, 0, len(body.Records))
	created := make([]*larkbitable.AppTableRecord, 0, len(body.Records))
	for _, rec := range body.Records {
		batch = append(batch, rec.Fields)
		id := fmt.Sprintf("rec%d", len(created)+len(f.batches)*maxBatchCreate)
		created = append(created, &larkbitable.AppTableRecord{RecordId: larkcore.StringPtr(id), Fields: rec.Fields})
	}
	f.batches = append(f.batches, batch)
	return &larkbitable.BatchCreateAppTableRecordResp{
		ApiResp: okApiResp(),
		CodeError: larkcore.CodeError{
			Code: f.code,
			Msg:  "success",
		},
		Data: &larkbitable.BatchCreateAppTableRecordRespData{Records: created},
	}, nil
}

type fakeWikiAPI struct {
	calls int
}

func (f *fakeWikiAPI) GetNode(ctx context.Context, token string, options ...larkcore.RequestOptionFunc) (*larkwiki.GetNodeSpaceResp, error) {
	f.calls++
	return &larkwiki.GetNodeSpaceResp{
		ApiResp:   okApiResp(),
		CodeError: larkcore.CodeError{Code: 0, Msg: "success"},
		Data: &larkwiki.GetNodeSpaceRespData{
			Node: &larkwiki.Node{
				ObjToken: larkcore.StringPtr("app-from-wiki"),
				ObjType:  larkcore.StringPtr("bitable"),
			},
		},
	}, nil
}

func okApiResp() *larkcore.ApiResp {
	return &larkcore.ApiResp{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		RawBody:    []byte(`{"code":0,"msg":"success"}`),
	}
}

func TestParseBitableURL(t *testing.T) {
	ref, err := ParseBitableURL("https://example.feishu.cn/base/appTok?table=tbl1&view=vew1")
	if err != nil {
		t.Fatalf("ParseBitableURL error: %v", err)
	}
	if ref.AppToken != "appTok" || ref.TableID != "tbl1" || ref.ViewID != "vew1" {
		t.Fatalf("unexpected ref %+v", ref)
	}

	ref, err = ParseBitableURL("https://example.larksuite.com/wiki/wikiTok?table=tbl2")
	if err != nil {
		t.Fatalf("ParseBitableURL wiki error: %v", err)
	}
	if ref.WikiToken != "wikiTok" || ref.AppToken != "" {
		t.Fatalf("unexpected wiki ref %+v", ref)
	}

	for _, bad := range []string{
		"",
		"ftp://example.feishu.cn/base/app?table=t",
		"https://example.com/base/app?table=t",
		"https://example.feishu.cn/base/app",
	} {
		if _, err := ParseBitableURL(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestCreateDeviceRecordsBuildsRowsInOrder(t *testing.T) {
	fake := &fakeBitableAPI{}
	client := &Client{bitableAPI: fake}
	fetchedAt := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

	ids, err := client.CreateDeviceRecords(context.Background(),
		"https://example.feishu.cn/base/appTok?table=tbl1",
		DefaultDeviceFields,
		[]DeviceRecordInput{
			{Name: "iPhone 12", UDID: "AAA111", Number: 1, FetchedAt: fetchedAt},
			{Name: "iPad Pro", UDID: "BBB222", Number: 2, FetchedAt: fetchedAt},
		})
	if err != nil {
		t.Fatalf("CreateDeviceRecords error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "rec0" || ids[1] != "rec1" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if fake.appTokens[0] != "appTok" || fake.tableIDs[0] != "tbl1" {
		t.Fatalf("unexpected target %s/%s", fake.appTokens[0], fake.tableIDs[0])
	}
	row := fake.batches[0][1]
	if row["Name"] != "iPad Pro" || row["UDID"] != "BBB222" || row["Number"] != 2 {
		t.Fatalf("unexpected row %v", row)
	}
	if row["FetchedAt"] != fetchedAt.UnixMilli() {
		t.Fatalf("unexpected FetchedAt %v", row["FetchedAt"])
	}
}

func TestCreateDeviceRecordsSplitsBatches(t *testing.T) {
	fake := &fakeBitableAPI{}
	client := &Client{bitableAPI: fake}
	records := make([]DeviceRecordInput, maxBatchCreate+3)
	for i := range records {
		records[i] = DeviceRecordInput{Name: fmt.Sprintf("dev-%d", i), UDID: fmt.Sprintf("U%d", i), Number: i + 1}
	}
	ids, err := client.CreateDeviceRecords(context.Background(), "https://x.feishu.cn/base/app?table=t", DefaultDeviceFields, records)
	if err != nil {
		t.Fatalf("CreateDeviceRecords error: %v", err)
	}
	if len(fake.batches) != 2 || len(fake.batches[0]) != maxBatchCreate || len(fake.batches[1]) != 3 {
		t.Fatalf("unexpected batching %d batches", len(fake.batches))
	}
	if len(ids) != len(records) {
		t.Fatalf("expected %d ids, got %d", len(records), len(ids))
	}
}

func TestCreateDeviceRecordsResolvesWikiOnce(t *testing.T) {
	fake := &fakeBitableAPI{}
	wiki := &fakeWikiAPI{}
	client := &Client{bitableAPI: fake, wikiAPI: wiki}
	url := "https://x.feishu.cn/wiki/wikiTok?table=t"
	recs := []DeviceRecordInput{{Name: "a", UDID: "1", Number: 1}}

	for i := 0; i < 2; i++ {
		if _, err := client.CreateDeviceRecords(context.Background(), url, DefaultDeviceFields, recs); err != nil {
			t.Fatalf("CreateDeviceRecords error: %v", err)
		}
	}
	if wiki.calls != 1 {
		t.Fatalf("expected wiki node to be cached, got %d lookups", wiki.calls)
	}
	if fake.appTokens[1] != "app-from-wiki" {
		t.Fatalf("unexpected app token %s", fake.appTokens[1])
	}
}

func TestCreateDeviceRecordsReportsSDKFailure(t *testing.T) {
	client := &Client{bitableAPI: &fakeBitableAPI{code: 1254045}}
	_, err := client.CreateDeviceRecords(context.Background(), "https://x.feishu.cn/base/app?table=t", DefaultDeviceFields,
		[]DeviceRecordInput{{Name: "a", UDID: "1", Number: 1}})
	if err == nil || !strings.Contains(err.Error(), "code=1254045") {
		t.Fatalf("expected sdk failure, got %v", err)
	}
}
