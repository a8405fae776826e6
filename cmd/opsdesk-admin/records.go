package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/opsdesk-go/internal/data"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
)

type recordOptions struct {
	Collection domainauth.Collection
	ID         string
	Timeout    time.Duration
}

type putRecordOptions struct {
	recordOptions
	Doc     map[string]any
	Replace bool
}

type setRoleOptions struct {
	recordOptions
	Role domainauth.Role
}

type listRecordsOptions struct {
	Collection domainauth.Collection
	Limit      int
	Timeout    time.Duration
}

// collectionFlag accepts the short names "member" and "client" as well as the
// full collection names.
type collectionFlag struct {
	value *domainauth.Collection
}

func (f collectionFlag) String() string {
	if f.value == nil {
		return ""
	}
	return string(*f.value)
}

func (f collectionFlag) Set(raw string) error {
	c, err := parseCollection(raw)
	if err != nil {
		return err
	}
	*f.value = c
	return nil
}

func parseCollection(raw string) (domainauth.Collection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "member", "members", string(domainauth.CollectionMember):
		return domainauth.CollectionMember, nil
	case "client", "clients", string(domainauth.CollectionClient):
		return domainauth.CollectionClient, nil
	default:
		return "", fmt.Errorf("unknown collection %q (want member or client)", raw)
	}
}

// parseAdminRole accepts canonical role names and the tokens stored in records.
func parseAdminRole(raw string) (domainauth.Role, error) {
	if r := domainauth.Role(strings.ToLower(strings.TrimSpace(raw))); r.Valid() {
		return r, nil
	}
	r, err := domainauth.ParseRole(raw)
	if err != nil {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return r, nil
}

func newRecordFlagSet(name string, opts *recordOptions) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts.Collection = domainauth.CollectionMember
	opts.Timeout = defaultRecordTimeout
	fs.Var(collectionFlag{value: &opts.Collection}, "collection", "Record collection: member or client")
	fs.StringVar(&opts.ID, "id", "", "Record id (the provider user id)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultRecordTimeout, "Maximum duration for the operation")
	return fs
}

func validateRecordOptions(opts recordOptions) error {
	if strings.TrimSpace(opts.ID) == "" {
		return errors.New("--id is required")
	}
	if opts.Timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}
	return nil
}

func parseGetRecordFlags(name string, args []string) (recordOptions, error) {
	var opts recordOptions
	fs := newRecordFlagSet(name, &opts)
	if err := fs.Parse(args); err != nil {
		return recordOptions{}, err
	}
	if err := validateRecordOptions(opts); err != nil {
		return recordOptions{}, err
	}
	return opts, nil
}

func parsePutRecordFlags(args []string) (putRecordOptions, error) {
	var (
		opts putRecordOptions
		raw  string
	)
	fs := newRecordFlagSet("put-record", &opts.recordOptions)
	fs.StringVar(&raw, "data", "", "JSON object holding the record fields")
	fs.BoolVar(&opts.Replace, "replace", false, "Overwrite the whole document instead of merging into it")
	if err := fs.Parse(args); err != nil {
		return putRecordOptions{}, err
	}
	if err := validateRecordOptions(opts.recordOptions); err != nil {
		return putRecordOptions{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return putRecordOptions{}, errors.New("--data is required")
	}
	if err := json.Unmarshal([]byte(raw), &opts.Doc); err != nil {
		return putRecordOptions{}, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	if opts.Doc == nil {
		return putRecordOptions{}, errors.New("--data must be a JSON object")
	}
	return opts, nil
}

func parseSetRoleFlags(args []string) (setRoleOptions, error) {
	var (
		opts setRoleOptions
		raw  string
	)
	fs := newRecordFlagSet("set-role", &opts.recordOptions)
	fs.StringVar(&raw, "role", "", "Role to write: employee, client, manager, admin or superadmin")
	if err := fs.Parse(args); err != nil {
		return setRoleOptions{}, err
	}
	if err := validateRecordOptions(opts.recordOptions); err != nil {
		return setRoleOptions{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return setRoleOptions{}, errors.New("--role is required")
	}
	role, err := parseAdminRole(raw)
	if err != nil {
		return setRoleOptions{}, err
	}
	opts.Role = role
	return opts, nil
}

func parseListRecordsFlags(args []string) (listRecordsOptions, error) {
	fs := flag.NewFlagSet("list-records", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listRecordsOptions{
		Collection: domainauth.CollectionMember,
		Limit:      50,
		Timeout:    defaultRecordTimeout,
	}
	fs.Var(collectionFlag{value: &opts.Collection}, "collection", "Record collection: member or client")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of records to print")
	fs.DurationVar(&opts.Timeout, "timeout", defaultRecordTimeout, "Maximum duration for the operation")
	if err := fs.Parse(args); err != nil {
		return listRecordsOptions{}, err
	}
	if opts.Limit <= 0 {
		return listRecordsOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Timeout <= 0 {
		return listRecordsOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func withProfileRepo(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *data.ProfileRepo) error,
) error {
	return withDatabase(cmdCtx, timeout, func(ctx context.Context, db *sql.DB) error {
		return f(ctx, data.NewProfileRepo(db, data.ProfileRepoConfig{Logger: cmdCtx.Logger}))
	})
}

func runGetRecord(cmdCtx *commandContext, args []string) error {
	opts, err := parseGetRecordFlags("get-record", args)
	if err != nil {
		return err
	}
	return withProfileRepo(cmdCtx, opts.Timeout, func(ctx context.Context, repo *data.ProfileRepo) error {
		rec, err := repo.Get(ctx, opts.Collection, opts.ID)
		if err != nil {
			return err
		}
		return printRecord(os.Stdout, rec)
	})
}

func runListRecords(cmdCtx *commandContext, args []string) error {
	opts, err := parseListRecordsFlags(args)
	if err != nil {
		return err
	}
	return withProfileRepo(cmdCtx, opts.Timeout, func(ctx context.Context, repo *data.ProfileRepo) error {
		recs, err := repo.List(ctx, opts.Collection, opts.Limit)
		if err != nil {
			return err
		}
		return printRecordTable(os.Stdout, recs)
	})
}

func runPutRecord(cmdCtx *commandContext, args []string) error {
	opts, err := parsePutRecordFlags(args)
	if err != nil {
		return err
	}
	return withProfileRepo(cmdCtx, opts.Timeout, func(ctx context.Context, repo *data.ProfileRepo) error {
		write := repo.Create
		if opts.Replace {
			write = repo.Replace
		}
		if err := write(ctx, opts.Collection, opts.ID, opts.Doc); err != nil {
			return err
		}
		rec, err := repo.Get(ctx, opts.Collection, opts.ID)
		if err != nil {
			return err
		}
		return printRecord(os.Stdout, rec)
	})
}

func runSetRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseSetRoleFlags(args)
	if err != nil {
		return err
	}
	return withProfileRepo(cmdCtx, opts.Timeout, func(ctx context.Context, repo *data.ProfileRepo) error {
		fields := make(map[string]any, len(domainauth.RoleWriteKeys))
		for _, key := range domainauth.RoleWriteKeys {
			fields[key] = opts.Role.StorageValue()
		}
		found, err := repo.Merge(ctx, opts.Collection, opts.ID, fields)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("record %s/%s not found", opts.Collection, opts.ID)
		}
		return writef(os.Stdout, "Set role of %s/%s to %s.\n", opts.Collection, opts.ID, opts.Role)
	})
}

func runDeleteRecord(cmdCtx *commandContext, args []string) error {
	opts, err := parseGetRecordFlags("delete-record", args)
	if err != nil {
		return err
	}
	return withProfileRepo(cmdCtx, opts.Timeout, func(ctx context.Context, repo *data.ProfileRepo) error {
		deleted, err := repo.Delete(ctx, opts.Collection, opts.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return writef(os.Stdout, "No record %s/%s.\n", opts.Collection, opts.ID)
		}
		return writef(os.Stdout, "Deleted %s/%s.\n", opts.Collection, opts.ID)
	})
}

type recordView struct {
	Collection domainauth.Collection `json:"collection"`
	ID         string                `json:"id"`
	Data       map[string]any        `json:"data"`
}

func printRecord(w io.Writer, rec domainauth.ProfileRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recordView{Collection: rec.Collection, ID: rec.ID, Data: rec.Data})
}

func printRecordTable(w io.Writer, recs []domainauth.ProfileRecord) error {
	if len(recs) == 0 {
		return writeln(w, "No records.")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tNAME"); err != nil {
		return err
	}
	for _, rec := range recs {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			rec.ID,
			orDash(rec.Email()),
			orDash(rec.RawRole()),
			orDash(domainauth.DisplayNameField.Value(rec.Data)),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
