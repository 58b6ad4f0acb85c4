package walk

import (
	"context"

	"github.com/tonimelisma/drivescan/internal/gdrive"
)

// ChildLister is the subset of gdrive.Client the walker needs.
type ChildLister interface {
	ListChildren(ctx context.Context, folderID, pageToken string) (*gdrive.FileList, error)
}

// DriveLister adapts a Drive client to Lister.
type DriveLister struct {
	client ChildLister
}

// NewDriveLister wraps client.
func NewDriveLister(client ChildLister) *DriveLister {
	return &DriveLister{client: client}
}

// ListPage implements Lister.
func (d *DriveLister) ListPage(ctx context.Context, folderID, pageToken string) (Page, error) {
	fl, err := d.client.ListChildren(ctx, folderID, pageToken)
	if err != nil {
		return Page{}, err
	}

	nodes := make([]Node, 0, len(fl.Files))
	for i := range fl.Files {
		nodes = append(nodes, nodeFromFile(&fl.Files[i]))
	}

	return Page{Nodes: nodes, NextPageToken: fl.NextPageToken}, nil
}

func nodeFromFile(f *gdrive.File) Node {
	n := Node{
		ID:        f.ID,
		Name:      f.Name,
		Kind:      KindFile,
		Size:      SizeUnknown,
		Reference: gdrive.ReferenceURL(f.ID),
	}

	if f.IsFolder {
		n.Kind = KindFolder
		return n
	}

	if f.Size != gdrive.SizeUnknown {
		n.Size = f.Size
	}

	return n
}
