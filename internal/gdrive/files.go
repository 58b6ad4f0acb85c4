package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
)

// listPageSize is the pageSize value for files.list requests.
// 1000 is the maximum allowed by the Drive API.
const listPageSize = 1000

// listFields restricts files.list responses to what a scan needs.
const listFields = "nextPageToken, files(id, name, mimeType, size)"

// fileResponse mirrors the Drive file resource JSON. Drive encodes int64
// fields such as size as strings.
type fileResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     string `json:"size"`
}

type fileListResponse struct {
	Files         []fileResponse `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

type aboutResponse struct {
	User struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	} `json:"user"`
}

// toFile normalizes a Drive file resource into our File type.
func (f *fileResponse) toFile(logger *slog.Logger) File {
	file := File{
		ID:       f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
		IsFolder: f.MimeType == FolderMimeType,
		Size:     SizeUnknown,
	}

	if f.Size == "" {
		return file
	}

	size, err := strconv.ParseInt(f.Size, 10, 64)
	if err != nil || size < 0 {
		logger.Warn("invalid size in file resource, treating as unknown",
			slog.String("file_id", f.ID),
			slog.String("raw", f.Size),
		)

		return file
	}

	file.Size = size

	return file
}

// childrenQuery builds the files.list search expression for the direct,
// non-trashed children of folderID. Quotes and backslashes in the ID are
// escaped per the Drive query grammar.
func childrenQuery(folderID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(folderID)

	return fmt.Sprintf("'%s' in parents and trashed = false", escaped)
}

// ListChildren fetches a single page of the direct children of folderID.
// pageToken is empty for the first page; the returned NextPageToken is
// empty on the last page.
func (c *Client) ListChildren(ctx context.Context, folderID, pageToken string) (*FileList, error) {
	q := url.Values{}
	q.Set("q", childrenQuery(folderID))
	q.Set("fields", listFields)
	q.Set("spaces", "drive")
	q.Set("pageSize", strconv.Itoa(listPageSize))
	q.Set("supportsAllDrives", "true")
	q.Set("includeItemsFromAllDrives", "true")

	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	resp, err := c.Get(ctx, "/files", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var flr fileListResponse
	if err := json.NewDecoder(resp.Body).Decode(&flr); err != nil {
		return nil, fmt.Errorf("gdrive: decoding file list response: %w", err)
	}

	files := make([]File, 0, len(flr.Files))
	for i := range flr.Files {
		files = append(files, flr.Files[i].toFile(c.logger))
	}

	c.logger.Debug("fetched children page",
		slog.String("folder_id", folderID),
		slog.Int("count", len(files)),
		slog.Bool("has_more", flr.NextPageToken != ""),
	)

	return &FileList{Files: files, NextPageToken: flr.NextPageToken}, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	q := url.Values{}
	q.Set("fields", "user(displayName, emailAddress)")

	resp, err := c.Get(ctx, "/about", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ar aboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("gdrive: decoding about response: %w", err)
	}

	return &User{
		DisplayName: ar.User.DisplayName,
		Email:       ar.User.EmailAddress,
	}, nil
}
