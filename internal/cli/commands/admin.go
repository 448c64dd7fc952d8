package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"kernelfs/internal/vfs"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent operations",
	Long: `Show the operation log, most recent last.

Examples:
  kernelfs log
  kernelfs log -n 20`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

var permCmd = &cobra.Command{
	Use:   "perm",
	Short: "Inspect and change access rules",
	Long: `Inspect and change per-path access rules.
A rule applies to its path and everything below it until a closer rule overrides it.

Subcommands:
  get   Show effective permissions for a path
  set   Store a rule for one operation at a path
  ls    List stored rules`,
}

var permGetCmd = &cobra.Command{
	Use:   "get <path> [read|write|execute]",
	Short: "Show effective permissions for a path",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPermGet,
}

var permSetCmd = &cobra.Command{
	Use:   "set <path> <read|write|execute> <allow|deny>",
	Short: "Store a rule for one operation at a path",
	Long: `Store a rule for one operation at a path.

Examples:
  kernelfs perm set / write allow
  kernelfs perm set /users/guest write deny`,
	Args: cobra.ExactArgs(3),
	RunE: runPermSet,
}

var permLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored rules",
	Args:  cobra.NoArgs,
	RunE:  runPermLs,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show file system statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var logLimit int

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 50, "Number of entries to show (0 = all)")
	permCmd.AddCommand(permGetCmd, permSetCmd, permLsCmd)
	rootCmd.AddCommand(logCmd, permCmd, statsCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, e := range kfs.GetLog(logLimit) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format(time.RFC3339), e.Operation, e.Path, e.Status, e.Details)
		}
		return tw.Flush()
	})
}

func formatAllowed(ok bool) string {
	if ok {
		return "allow"
	}
	return "deny"
}

func parseAllowed(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "allow":
		return true, nil
	case "deny":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid value %q: use allow or deny", s)
	}
	return v, nil
}

func runPermGet(cmd *cobra.Command, args []string) error {
	ops := []vfs.Operation{vfs.OpRead, vfs.OpWrite, vfs.OpExecute}
	if len(args) == 2 {
		op, err := vfs.ParseOperation(args[1])
		if err != nil {
			return err
		}
		ops = []vfs.Operation{op}
	}
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		out := cmd.OutOrStdout()
		for _, op := range ops {
			ok, err := kfs.CheckPermission(args[0], op)
			if err != nil {
				return err
			}
			if len(ops) == 1 {
				fmt.Fprintln(out, formatAllowed(ok))
			} else {
				fmt.Fprintf(out, "%-8s %s\n", op+":", formatAllowed(ok))
			}
		}
		return nil
	})
}

func runPermSet(cmd *cobra.Command, args []string) error {
	op, err := vfs.ParseOperation(args[1])
	if err != nil {
		return err
	}
	allowed, err := parseAllowed(args[2])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		return kfs.SetPermission(args[0], op, allowed)
	})
}

func runPermLs(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tREAD\tWRITE\tEXECUTE")
		for _, e := range kfs.Permissions() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Path, ruleString(e.Read), ruleString(e.Write), ruleString(e.Execute))
		}
		return tw.Flush()
	})
}

func ruleString(rule *bool) string {
	if rule == nil {
		return "-"
	}
	return formatAllowed(*rule)
}

func runStats(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		st := kfs.Statistics()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version:      %s\n", st.Version)
		fmt.Fprintf(out, "Files:        %d\n", st.TotalFiles)
		fmt.Fprintf(out, "Directories:  %d\n", st.TotalDirectories)
		fmt.Fprintf(out, "Total size:   %d\n", st.TotalSize)
		fmt.Fprintf(out, "Mount:        %s\n", st.Mount.State)
		if st.Mount.State == vfs.Mounted {
			fmt.Fprintf(out, "Mount root:   %s\n", st.Mount.Root)
			fmt.Fprintf(out, "Mount ID:     %s\n", st.Mount.ID)
		}
		fmt.Fprintf(out, "Operations:   %d of %d\n", st.OperationCount, st.LogCapacity)
		fmt.Fprintf(out, "Rules:        %d\n", st.PermissionCount)
		return nil
	})
}
