package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strconv"

	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/session"
)

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (*session.Session, error) {
	out, err := callJSON[loginResponse](ctx, c, "POST", "/api/auth/login",
		map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("%w: login response without user", ErrShape)
	}
	return session.New(out.User.Username, out.Token)
}

// Logout revokes the client's token.
func (c *Client) Logout(ctx context.Context) error {
	_, err := callJSON[map[string]string](ctx, c, "POST", "/api/auth/logout", nil)
	return err
}

// ListInitiated returns transfers initiated by username.
func (c *Client) ListInitiated(ctx context.Context, username string) ([]model.Transfer, error) {
	return callJSON[[]model.Transfer](ctx, c, "GET",
		"/api/assets/transfers?"+url.Values{"ramco": {username}}.Encode(), nil)
}

// ListIncoming returns transfers with at least one item for username.
func (c *Client) ListIncoming(ctx context.Context, username string) ([]model.Transfer, error) {
	return callJSON[[]model.Transfer](ctx, c, "GET",
		"/api/assets/transfers?"+url.Values{"new_owner": {username}}.Encode(), nil)
}

// GetTransfer returns one transfer with its items.
func (c *Client) GetTransfer(ctx context.Context, id int64) (*model.Transfer, error) {
	t, err := callJSON[model.Transfer](ctx, c, "GET", "/api/assets/transfers/"+itoa(id), nil)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetItem returns one item of a transfer.
func (c *Client) GetItem(ctx context.Context, transferID, itemID int64) (*model.TransferItem, error) {
	item, err := callJSON[model.TransferItem](ctx, c, "GET",
		"/api/assets/transfers/"+itoa(transferID)+"/items/"+itoa(itemID), nil)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Checklist returns the ordered acceptance checklist of an asset type.
func (c *Client) Checklist(ctx context.Context, typeID int64) ([]model.ChecklistItem, error) {
	return callJSON[[]model.ChecklistItem](ctx, c, "GET",
		"/api/assets/transfer-checklist?"+url.Values{"type": {itoa(typeID)}}.Encode(), nil)
}

// File is an attachment to upload.
type File struct {
	Name string
	Data []byte
}

// Submission is an acceptance of a transfer item.
type Submission struct {
	ChecklistItems string `json:"checklist-items"`
	AcceptanceBy   string `json:"acceptance_by"`
	AcceptanceDate string `json:"acceptance_date"`
	Remarks        string `json:"acceptance_remarks,omitempty"`
	Attachment     *File  `json:"-"`
}

// SubmitAcceptance accepts a transfer item. With an attachment the
// submission is sent as a multipart form, otherwise as JSON.
func (c *Client) SubmitAcceptance(ctx context.Context, itemID int64, sub Submission) (*model.TransferItem, error) {
	path := "/api/assets/transfers/" + itoa(itemID) + "/acceptance"
	if sub.Attachment == nil {
		item, err := callJSON[model.TransferItem](ctx, c, "PUT", path, sub)
		if err != nil {
			return nil, err
		}
		return &item, nil
	}

	body, contentType, err := multipartBody(sub)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, "PUT", path, body, contentType)
	if err != nil {
		return nil, err
	}
	item, err := call[model.TransferItem](c, req)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func multipartBody(sub Submission) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"checklist-items", sub.ChecklistItems},
		{"acceptance_by", sub.AcceptanceBy},
		{"acceptance_date", sub.AcceptanceDate},
		{"acceptance_remarks", sub.Remarks},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("writing %s: %w", f[0], err)
		}
	}
	fw, err := w.CreateFormFile("acceptance_attachments", sub.Attachment.Name)
	if err != nil {
		return nil, "", fmt.Errorf("creating attachment part: %w", err)
	}
	if _, err := fw.Write(sub.Attachment.Data); err != nil {
		return nil, "", fmt.Errorf("writing attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Resend asks the server to resend the approval or acceptance notification
// of a transfer.
func (c *Client) Resend(ctx context.Context, transferID int64, kind string) (*model.Notification, error) {
	if !model.ValidNotifyKind(kind) {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownNotifyKind, kind)
	}
	msg, err := callJSON[model.Notification](ctx, c, "POST",
		"/api/assets/transfers/"+itoa(transferID)+"/resend-"+kind+"-notification", nil)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
