package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"kernelfs/internal/vfs"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Long: `List the entries of a directory, directories first.

Examples:
  kernelfs ls
  kernelfs ls /users/admin
  kernelfs ls -l /system`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

var writeCmd = &cobra.Command{
	Use:   "write <path> [content]",
	Short: "Create or replace a file",
	Long: `Create or replace a file. Content is read from stdin when omitted or "-".
The parent directory must exist.

Examples:
  kernelfs write /users/admin/notes.txt "hello"
  echo '{"a":1}' | kernelfs write /users/admin/data.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWrite,
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>...",
	Short: "Create directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMkdir,
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Remove files or directories",
	Long: `Remove files or directories. Non-empty directories need -r.

Examples:
  kernelfs rm /users/admin/notes.txt
  kernelfs rm -r /users/admin/downloads`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show file or directory metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

var (
	lsLong      bool
	mkdirParent bool
	rmRecursive bool
)

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "Show size, modification time and type")
	mkdirCmd.Flags().BoolVarP(&mkdirParent, "parents", "p", false, "Create missing parents; existing directories are not an error")
	rmCmd.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "Remove directories and their contents")

	rootCmd.AddCommand(lsCmd, catCmd, writeCmd, mkdirCmd, rmCmd, statCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	target := "/"
	if len(args) > 0 {
		target = args[0]
	}
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		entries, err := kfs.List(ctx, target)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !lsLong {
			for _, e := range entries {
				if e.Kind == vfs.KindDirectory {
					fmt.Fprintf(out, "%s/\n", e.Name)
				} else {
					fmt.Fprintln(out, e.Name)
				}
			}
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			info, err := kfs.Stat(ctx, joinChild(target, e.Name))
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", info.Kind, info.Size, info.ModifiedAt.Format(time.DateTime), e.Name)
		}
		return tw.Flush()
	})
}

func joinChild(dir, name string) string {
	if dir == "/" || dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}

func runCat(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		data, err := kfs.Read(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	})
}

func runWrite(cmd *cobra.Command, args []string) error {
	var content []byte
	if len(args) == 2 && args[1] != "-" {
		content = []byte(args[1])
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		content = data
	}
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		return kfs.Write(ctx, args[0], content)
	})
}

func runMkdir(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		for _, p := range args {
			var err error
			if mkdirParent {
				err = kfs.MkdirAll(ctx, p)
			} else {
				err = kfs.Mkdir(ctx, p)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		for _, p := range args {
			if err := kfs.Remove(ctx, p, rmRecursive); err != nil {
				return err
			}
		}
		return nil
	})
}

func runStat(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, kfs *vfs.KernelFS) error {
		info, err := kfs.Stat(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Path:     %s\n", info.Path)
		fmt.Fprintf(out, "Kind:     %s\n", info.Kind)
		fmt.Fprintf(out, "Size:     %d\n", info.Size)
		if info.MimeType != "" {
			fmt.Fprintf(out, "MIME:     %s\n", info.MimeType)
		}
		if info.Owner != "" {
			fmt.Fprintf(out, "Owner:    %s\n", info.Owner)
		}
		fmt.Fprintf(out, "Created:  %s\n", info.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Modified: %s\n", info.ModifiedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Accessed: %s\n", info.AccessedAt.Format(time.RFC3339))
		return nil
	})
}
