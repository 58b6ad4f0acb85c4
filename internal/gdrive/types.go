package gdrive

import "net/url"

// FolderMimeType is the MIME type Drive assigns to folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// SizeUnknown indicates the size was not present in the API response.
// Drive omits size for folders and Google-native documents.
const SizeUnknown = -1

// File represents a Drive file or folder.
// Fields are normalized from the API response; callers never see raw API data.
type File struct {
	ID       string
	Name     string
	MimeType string
	IsFolder bool
	Size     int64 // SizeUnknown if not present
}

// FileList is one page of a folder listing. NextPageToken is empty on the
// final page.
type FileList struct {
	Files         []File
	NextPageToken string
}

// User is the authenticated account as reported by the about endpoint.
type User struct {
	DisplayName string
	Email       string
}

// ReferenceURL returns the browser link for a Drive file ID. The link is a
// pure function of the ID so exports are reproducible.
func ReferenceURL(id string) string {
	return "https://drive.google.com/file/d/" + url.PathEscape(id) + "/view?usp=drive_link"
}
