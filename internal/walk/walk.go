// Package walk flattens a remote folder hierarchy into an ordered list of
// entries. Folders are listed page by page through a Lister and traversed
// depth-first in pre-order using an explicit worklist, so arbitrarily deep
// trees never grow the goroutine stack.
//
// The remote hierarchy is assumed to be acyclic. No cycle detection is
// performed.
package walk

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/text/unicode/norm"
)

// Kind discriminates files from folders.
type Kind string

// Node kinds.
const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// SizeUnknown marks a node or entry whose size the remote did not report.
const SizeUnknown = -1

// maxPagesPerFolder guards against a remote that never stops returning
// continuation tokens.
const maxPagesPerFolder = 100000

// Node is an immutable snapshot of one remote child.
type Node struct {
	ID        string
	Name      string
	Kind      Kind
	Size      int64 // SizeUnknown if not reported
	Reference string
}

// Page is one response of a paginated folder listing. NextPageToken is
// empty on the last page.
type Page struct {
	Nodes         []Node
	NextPageToken string
}

// Lister fetches one page of a folder's direct children. pageToken is empty
// for the first page.
type Lister interface {
	ListPage(ctx context.Context, folderID, pageToken string) (Page, error)
}

// Entry is one row of a flattened walk. Path is the slash-joined names of
// the ancestor folders below the walk root; direct children of the root
// have an empty Path.
type Entry struct {
	Name      string
	Reference string
	Size      int64 // SizeUnknown if not reported
	Kind      Kind
	Path      string
}

// Progress is reported after each folder has been fully listed.
type Progress struct {
	FoldersListed int
	EntriesFound  int
}

// Walker enumerates a folder tree.
type Walker struct {
	lister   Lister
	logger   *slog.Logger
	onFolder func(Progress)
}

// New creates a Walker reading through lister.
func New(lister Lister, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Walker{lister: lister, logger: logger}
}

// OnFolder registers fn to be called after each folder listing completes.
// fn runs on the walking goroutine.
func (w *Walker) OnFolder(fn func(Progress)) {
	w.onFolder = fn
}

// frame is one folder on the worklist: its fully drained children, the
// index of the next child to emit, and the path its children carry.
type frame struct {
	nodes []Node
	next  int
	path  string
}

// Walk returns every descendant of rootID in pre-order: each folder's entry
// precedes its descendants, and siblings keep the order the remote returned
// them in. Any listing failure aborts the walk and no entries are returned.
func (w *Walker) Walk(ctx context.Context, rootID string) ([]Entry, error) {
	w.logger.Info("walk starting", slog.String("root_id", rootID))

	var (
		entries []Entry
		folders int
	)

	rootChildren, err := w.listAll(ctx, rootID)
	if err != nil {
		return nil, err
	}

	folders++
	w.report(folders, len(entries))

	stack := []frame{{nodes: rootChildren}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(top.nodes) {
			stack = stack[:len(stack)-1]
			continue
		}

		node := top.nodes[top.next]
		top.next++
		parentPath := top.path

		name := norm.NFC.String(node.Name)
		entries = append(entries, Entry{
			Name:      name,
			Reference: node.Reference,
			Size:      node.Size,
			Kind:      node.Kind,
			Path:      parentPath,
		})

		if node.Kind != KindFolder {
			continue
		}

		children, err := w.listAll(ctx, node.ID)
		if err != nil {
			return nil, err
		}

		folders++
		w.report(folders, len(entries))

		// top is invalid past this append.
		stack = append(stack, frame{nodes: children, path: joinPath(parentPath, name)})
	}

	w.logger.Info("walk complete",
		slog.String("root_id", rootID),
		slog.Int("folders", folders),
		slog.Int("entries", len(entries)),
	)

	return entries, nil
}

// listAll drains every page of folderID's children and returns them
// concatenated in request order.
func (w *Walker) listAll(ctx context.Context, folderID string) ([]Node, error) {
	var (
		nodes []Node
		token string
	)

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("walk: listing folder %s: %w", folderID, err)
		}

		if page > maxPagesPerFolder {
			return nil, fmt.Errorf("walk: listing folder %s: exceeded %d pages", folderID, maxPagesPerFolder)
		}

		p, err := w.lister.ListPage(ctx, folderID, token)
		if err != nil {
			return nil, fmt.Errorf("walk: listing folder %s (page %d): %w", folderID, page, err)
		}

		nodes = append(nodes, p.Nodes...)

		if p.NextPageToken == "" {
			return nodes, nil
		}

		if p.NextPageToken == token {
			return nil, fmt.Errorf("walk: listing folder %s: page token %q did not advance", folderID, token)
		}

		token = p.NextPageToken
	}
}

func (w *Walker) report(folders, entries int) {
	if w.onFolder != nil {
		w.onFolder(Progress{FoldersListed: folders, EntriesFound: entries})
	}
}

// joinPath appends name to parent without a leading separator at the root.
func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}
