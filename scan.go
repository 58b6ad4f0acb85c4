package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivescan/internal/results"
	"github.com/tonimelisma/drivescan/internal/scan"
)

// outputFilePerms is the mode of the exported CSV.
const outputFilePerms = 0o644

func newScanCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "scan <folder-id>",
		Short: "Scan a folder tree and write it as CSV",
		Long: `Run one scan job in this process and write the result table to a file.

The folder id is the last path segment of a Drive folder URL. Use "root" for
My Drive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", results.DownloadName, "CSV output file")

	return cmd
}

// scanOutput is the JSON schema for `scan --json`.
type scanOutput struct {
	scan.Snapshot
	Output string `json:"output,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
}

func runScan(cmd *cobra.Command, folderID, output string) error {
	cc := mustCLIContext(cmd)
	ctx := cmd.Context()

	httpClient := newHTTPClient(cc.Cfg)

	auth, err := newAuthenticator(cc, httpClient)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "drivescan-*")
	if err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	coord := scan.NewCoordinator(scan.Config{
		Store:         scan.NewMemoryStore(),
		Results:       results.NewLocalStore(workDir, cc.Logger),
		Credentials:   auth,
		NewLister:     listerFactory(cc, httpClient),
		MaxConcurrent: 1,
		Logger:        cc.Logger,
	})

	final, err := followScan(ctx, cc, coord, folderID)
	if err != nil {
		return err
	}

	out := scanOutput{Snapshot: final}

	switch final.Status {
	case scan.StatusAuthRequired:
		// Always visible, even with --quiet: the user has to act on it.
		fmt.Fprintf(os.Stderr, "Authorization required. Run 'drivescan login', or visit:\n%s\n", final.AuthorizationURL)
		if cc.Flags.JSON {
			return printJSON(out)
		}

		return errors.New("not authorized")
	case scan.StatusFailed:
		if cc.Flags.JSON {
			if err := printJSON(out); err != nil {
				return err
			}
		}

		return fmt.Errorf("scan failed: %s", final.Message)
	}

	n, err := exportResult(ctx, coord, final.JobID, output)
	if err != nil {
		return err
	}

	out.Output = output
	out.Bytes = n

	if cc.Flags.JSON {
		return printJSON(out)
	}

	cc.Statusf("%s. Wrote %s (%s).\n", final.Message, output, formatSize(n))

	return nil
}

// followScan submits the job and prints progress until it ends.
func followScan(ctx context.Context, cc *CLIContext, coord *scan.Coordinator, folderID string) (scan.Snapshot, error) {
	id, err := coord.Submit(ctx, folderID)
	if err != nil {
		return scan.Snapshot{}, err
	}

	// The coordinator does not cancel jobs; waiting keeps the work
	// directory alive until the routine is done with it.
	defer coord.Wait()

	updates, cancel, err := coord.Subscribe(ctx, id)
	if err != nil {
		return scan.Snapshot{}, err
	}
	defer cancel()

	var last scan.Snapshot

	for snap := range updates {
		last = snap

		if !snap.Terminal() && !cc.Flags.JSON {
			cc.Statusf("[%3d%%] %s\n", snap.Progress, snap.Message)
		}
	}

	return last, nil
}

// exportResult copies the job's table to path via a temp file and rename,
// so an interrupted copy never leaves a truncated CSV behind.
func exportResult(ctx context.Context, coord *scan.Coordinator, jobID, path string) (int64, error) {
	rc, err := coord.Result(ctx, jobID)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".drivescan-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating output file: %w", err)
	}

	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, rc)
	if err == nil {
		err = tmp.Chmod(outputFilePerms)
	}

	if err == nil {
		err = tmp.Sync()
	}

	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tmpPath, path)
	}

	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}

	return n, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
