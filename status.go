package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivescan/internal/config"
	"github.com/tonimelisma/drivescan/internal/scan"
)

// defaultStatusLimit is how many recent jobs `status` lists.
const defaultStatusLimit = 20

// errNoJobHistory explains why status cannot work with the memory store.
var errNoJobHistory = errors.New(`job history needs [jobs] store = "sqlite" in the config file`)

func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show scan jobs recorded by the server",
		Long: `Show one job, or list the most recent jobs, from the SQLite job store.

Reads the database directly, so it works whether or not the server is running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultStatusLimit, "number of recent jobs to list")

	return cmd
}

// statusJob is the JSON schema for one job in `status --json`.
type statusJob struct {
	scan.Snapshot
	RootID    string    `json:"root_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newStatusJob(j *scan.Job) statusJob {
	return statusJob{
		Snapshot:  j.Snapshot(),
		RootID:    j.RootID,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func runStatus(cmd *cobra.Command, args []string, limit int) error {
	cc := mustCLIContext(cmd)
	ctx := cmd.Context()

	if cc.Cfg.Jobs.Store != config.StoreSQLite {
		return errNoJobHistory
	}

	store, err := scan.OpenSQLiteStore(ctx, cc.Cfg.Jobs.DBPath, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		job, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return printJSON(newStatusJob(job))
		}

		printJobDetail(os.Stdout, newStatusJob(job))

		return nil
	}

	jobs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}

	out := make([]statusJob, 0, len(jobs))
	for i := range jobs {
		out = append(out, newStatusJob(&jobs[i]))
	}

	if cc.Flags.JSON {
		return printJSON(out)
	}

	if len(out) == 0 {
		cc.Statusf("No scan jobs recorded.\n")
		return nil
	}

	printJobTable(os.Stdout, out)

	return nil
}

func printJobDetail(w io.Writer, j statusJob) {
	fmt.Fprintf(w, "Job:      %s\n", j.JobID)
	fmt.Fprintf(w, "Folder:   %s\n", j.RootID)
	fmt.Fprintf(w, "Status:   %s (%d%%)\n", j.Status, j.Progress)
	fmt.Fprintf(w, "Message:  %s\n", j.Message)

	if j.AuthorizationURL != "" {
		fmt.Fprintf(w, "Auth URL: %s\n", j.AuthorizationURL)
	}

	fmt.Fprintf(w, "Created:  %s\n", formatTime(j.CreatedAt.Local()))
	fmt.Fprintf(w, "Updated:  %s\n", formatTime(j.UpdatedAt.Local()))
}

func printJobTable(w io.Writer, jobs []statusJob) {
	headers := []string{"JOB", "STATUS", "PROGRESS", "ENTRIES", "CREATED", "FOLDER"}
	rows := make([][]string, 0, len(jobs))

	for i := range jobs {
		j := &jobs[i]

		entries := "-"
		if j.EntryCount != nil {
			entries = strconv.Itoa(*j.EntryCount)
		}

		rows = append(rows, []string{
			j.JobID,
			string(j.Status),
			strconv.Itoa(j.Progress) + "%",
			entries,
			formatTime(j.CreatedAt.Local()),
			j.RootID,
		})
	}

	printTable(w, headers, rows)
}
