package onedrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tenacious-erp/integration_services/internal/backup_service/adapters/msauth"
)

// Uploader pushes backup files to the signed-in user's OneDrive via the
// Microsoft Graph API.
type Uploader struct {
	client       *resty.Client
	tokens       *msauth.TokenSource
	graphBaseURL string
	logger       *slog.Logger
}

// NewUploader creates a OneDrive uploader. graphBaseURL is typically
// "https://graph.microsoft.com/v1.0".
func NewUploader(tokens *msauth.TokenSource, graphBaseURL string, logger *slog.Logger) *Uploader {
	return &Uploader{
		client:       resty.New().SetTimeout(5 * time.Minute),
		tokens:       tokens,
		graphBaseURL: graphBaseURL,
		logger:       logger.With("uploader", "onedrive"),
	}
}

// Name returns the uploader identifier.
func (u *Uploader) Name() string {
	return "onedrive"
}

type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type driveChildrenResponse struct {
	Value []driveItem `json:"value"`
}

type graphErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// EnsureFolder finds the named folder under the drive root, creating it if
// absent, and returns its item id.
func (u *Uploader) EnsureFolder(ctx context.Context, folderName string) (string, error) {
	resp, body, err := u.withTokenRetry(ctx, func(token string) (*resty.Response, error) {
		var out driveChildrenResponse
		r, err := u.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParam("$filter", fmt.Sprintf("name eq '%s'", folderName)).
			SetResult(&out).
			Get(u.graphBaseURL + "/me/drive/root/children")
		return r, err
	})
	if err != nil {
		return "", fmt.Errorf("failed to list drive root children: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("listing drive root children returned status %d", resp.StatusCode())
	}
	children := body.(*driveChildrenResponse)
	for _, item := range children.Value {
		if item.Name == folderName {
			return item.ID, nil
		}
	}

	// Not found, create it.
	resp, body, err = u.withTokenRetry(ctx, func(token string) (*resty.Response, error) {
		var out driveItem
		r, err := u.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetBody(map[string]interface{}{
				"name":                              folderName,
				"folder":                            map[string]interface{}{},
				"@microsoft.graph.conflictBehavior": "fail",
			}).
			SetResult(&out).
			Post(u.graphBaseURL + "/me/drive/root/children")
		return r, err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create backup folder: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("creating backup folder returned status %d", resp.StatusCode())
	}

	created := body.(*driveItem)
	u.logger.Info("Created backup folder on OneDrive", "folder", folderName, "item_id", created.ID)
	return created.ID, nil
}

// UploadFile uploads one local file into the folder identified by folderRef,
// replacing any file with the same name.
func (u *Uploader) UploadFile(ctx context.Context, folderRef string, filePath string) error {
	fileName := filepath.Base(filePath)
	endpoint := fmt.Sprintf("%s/me/drive/items/%s:/%s:/content",
		u.graphBaseURL, folderRef, url.PathEscape(fileName))

	resp, _, err := u.withTokenRetry(ctx, func(token string) (*resty.Response, error) {
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
		}
		defer f.Close()

		var errOut graphErrorResponse
		r, err := u.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("Content-Type", "application/octet-stream").
			SetBody(f).
			SetError(&errOut).
			Put(endpoint)
		if err == nil && !r.IsSuccess() && errOut.Error.Message != "" {
			return r, fmt.Errorf("graph upload rejected: %s (%s)", errOut.Error.Message, errOut.Error.Code)
		}
		return r, err
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", fileName, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("uploading %s returned status %d", fileName, resp.StatusCode())
	}

	u.logger.Info("Uploaded backup file to OneDrive", "file", fileName)
	return nil
}

// withTokenRetry runs a Graph call with the current access token. A 401
// answer invalidates the cached token, refreshes once, and repeats the call
// exactly one more time; the second failure is final.
func (u *Uploader) withTokenRetry(ctx context.Context, call func(token string) (*resty.Response, error)) (*resty.Response, interface{}, error) {
	token, err := u.tokens.AccessToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	resp, err := call(token)
	if err != nil && resp == nil {
		return nil, nil, err
	}
	if resp.StatusCode() != http.StatusUnauthorized {
		return resp, resp.Result(), err
	}

	u.logger.Info("Access token rejected by Graph, refreshing and retrying once")
	u.tokens.Invalidate()
	token, refreshErr := u.tokens.Refresh(ctx)
	if refreshErr != nil {
		return nil, nil, fmt.Errorf("token refresh after 401 failed: %w", refreshErr)
	}

	resp, err = call(token)
	if err != nil && resp == nil {
		return nil, nil, err
	}
	return resp, resp.Result(), err
}
