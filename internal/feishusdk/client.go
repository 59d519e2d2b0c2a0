package feishusdk

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/builtbyproxy/retrieve-devices/internal/env"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	larkwiki "github.com/larksuite/oapi-sdk-go/v3/service/wiki/v2"
)

const (
	EnvAppID   = "FEISHU_APP_ID"
	EnvSecret  = "FEISHU_APP_SECRET"
	EnvBaseURL = "FEISHU_BASE_URL"

	// EnvDeviceBitableURL points at the table that mirrors registered devices.
	EnvDeviceBitableURL = "DEVICE_BITABLE_URL"
)

type bitableRecordAPI interface {
	BatchCreate(ctx context.Context, appToken, tableID string, body *larkbitable.BatchCreateAppTableRecordReqBody, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchCreateAppTableRecordResp, error)
}

type larkAppTableRecordService interface {
	BatchCreate(ctx context.Context, req *larkbitable.BatchCreateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchCreateAppTableRecordResp, error)
}

type sdkBitableRecordAPI struct {
	svc larkAppTableRecordService
}

func (a sdkBitableRecordAPI) BatchCreate(ctx context.Context, appToken, tableID string, body *larkbitable.BatchCreateAppTableRecordReqBody, options ...larkcore.RequestOptionFunc) (*larkbitable.BatchCreateAppTableRecordResp, error) {
	req := larkbitable.NewBatchCreateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		Body(body).
		Build()
	return a.svc.BatchCreate(ctx, req, options...)
}

type wikiSpaceAPI interface {
	GetNode(ctx context.Context, token string, options ...larkcore.RequestOptionFunc) (*larkwiki.GetNodeSpaceResp, error)
}

type larkWikiSpaceService interface {
	GetNode(ctx context.Context, req *larkwiki.GetNodeSpaceReq, options ...larkcore.RequestOptionFunc) (*larkwiki.GetNodeSpaceResp, error)
}

type sdkWikiSpaceAPI struct {
	svc larkWikiSpaceService
}

func (w sdkWikiSpaceAPI) GetNode(ctx context.Context, token string, options ...larkcore.RequestOptionFunc) (*larkwiki.GetNodeSpaceResp, error) {
	req := larkwiki.NewGetNodeSpaceReqBuilder().
		Token(token).
		Build()
	return w.svc.GetNode(ctx, req, options...)
}

// Client wraps the Feishu open platform calls used to mirror device lists.
// Tenant access tokens are obtained and cached by the SDK.
type Client struct {
	bitableAPI bitableRecordAPI
	wikiAPI    wikiSpaceAPI

	appTokenMu    sync.RWMutex
	appTokenCache map[string]string
}

// NewClientFromEnv constructs a Client from FEISHU_APP_ID, FEISHU_APP_SECRET
// and the optional FEISHU_BASE_URL.
func NewClientFromEnv() (*Client, error) {
	appID := env.String(EnvAppID, "")
	appSecret := env.String(EnvSecret, "")
	baseURL := strings.TrimRight(env.String(EnvBaseURL, ""), "/")
	if appID == "" || appSecret == "" {
		return nil, errors.New("feishu: FEISHU_APP_ID and FEISHU_APP_SECRET must be set in environment")
	}

	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelError),
	}
	if baseURL != "" && baseURL != lark.FeishuBaseUrl {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	client := lark.NewClient(appID, appSecret, opts...)

	return &Client{
		bitableAPI: sdkBitableRecordAPI{svc: client.Bitable.V1.AppTableRecord},
		wikiAPI:    sdkWikiSpaceAPI{svc: client.Wiki.V2.Space},
	}, nil
}
