package feishusdk

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/pkg/errors"
)

var hostAllowList = []string{"feishu.cn", "feishuapp.com", "larksuite.com", "larkoffice.com"}

// BitableRef identifies a bitable table parsed from a share link.
type BitableRef struct {
	RawURL    string
	AppToken  string
	TableID   string
	ViewID    string
	WikiToken string
}

func isAllowedFeishuHost(host string) bool {
	lower := strings.ToLower(strings.TrimSpace(host))
	if lower == "" {
		return false
	}
	for _, allowed := range hostAllowList {
		if strings.HasSuffix(lower, allowed) {
			return true
		}
	}
	return false
}

// ParseBitableURL extracts app token (or wiki token), table id and view id
// from /base/<app> or /wiki/<node> links.
func ParseBitableURL(raw string) (ref BitableRef, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "parse bitable url failed")
		}
	}()

	ref = BitableRef{RawURL: strings.TrimSpace(raw)}
	if ref.RawURL == "" {
		return ref, errors.New("empty url")
	}
	u, err := url.Parse(ref.RawURL)
	if err != nil {
		return ref, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ref, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if !isAllowedFeishuHost(u.Host) {
		return ref, fmt.Errorf("host %q is not recognized as Feishu", u.Host)
	}

	segments := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
	for i := 0; i+1 < len(segments); i++ {
		switch segments[i] {
		case "base":
			ref.AppToken = segments[i+1]
		case "wiki":
			ref.WikiToken = segments[i+1]
		}
	}
	if ref.AppToken == "" && ref.WikiToken == "" {
		return ref, errors.New("missing app token or wiki token in url")
	}

	q := u.Query()
	for _, key := range []string{"table", "tableId", "table_id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			ref.TableID = v
			break
		}
	}
	if ref.TableID == "" {
		return ref, errors.New("missing table id in url query")
	}
	for _, key := range []string{"view", "viewId", "view_id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			ref.ViewID = v
			break
		}
	}
	return ref, nil
}

// ensureAppToken resolves wiki links to the bitable app they embed.
func (c *Client) ensureAppToken(ctx context.Context, ref *BitableRef) error {
	if strings.TrimSpace(ref.AppToken) != "" {
		return nil
	}
	wikiToken := strings.TrimSpace(ref.WikiToken)
	if wikiToken == "" {
		return errors.New("feishu: bitable app token not found in url")
	}

	c.appTokenMu.RLock()
	cached, ok := c.appTokenCache[wikiToken]
	c.appTokenMu.RUnlock()
	if ok {
		ref.AppToken = cached
		return nil
	}

	if c.wikiAPI == nil {
		return errors.New("feishu: wiki sdk client is nil")
	}
	resp, err := c.wikiAPI.GetNode(ctx, wikiToken)
	if err != nil {
		return fmt.Errorf("feishu: wiki get_node request failed: %w", err)
	}
	if resp == nil || resp.ApiResp == nil {
		return errors.New("feishu: empty response when getting wiki node")
	}
	if err := ensureSDKSuccess("wiki get_node", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return err
	}
	if resp.Data == nil || resp.Data.Node == nil {
		return errors.New("feishu: wiki node response missing node")
	}
	objType := larkcore.StringValue(resp.Data.Node.ObjType)
	appToken := strings.TrimSpace(larkcore.StringValue(resp.Data.Node.ObjToken))
	if objType != "bitable" {
		return fmt.Errorf("feishu: wiki node type %q is not bitable", objType)
	}
	if appToken == "" {
		return errors.New("feishu: wiki node response missing obj_token")
	}

	c.appTokenMu.Lock()
	if c.appTokenCache == nil {
		c.appTokenCache = make(map[string]string)
	}
	c.appTokenCache[wikiToken] = appToken
	c.appTokenMu.Unlock()
	ref.AppToken = appToken
	return nil
}

func ensureSDKSuccess(action string, ok bool, code int, msg, logID string) error {
	if ok {
		return nil
	}
	if strings.TrimSpace(logID) == "" {
		return fmt.Errorf("feishu: %s failed code=%d msg=%s", action, code, msg)
	}
	return fmt.Errorf("feishu: %s failed code=%d msg=%s log_id=%s", action, code, msg, logID)
}
