// Copyright 2024 KernelFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kernelfs/internal/nfs"
	"kernelfs/internal/vfs"
)

var mountCmd = &cobra.Command{
	Use:   "mount <dir>",
	Short: "Mount a host directory as the hardware uplink",
	Long: `Mount a host directory as the hardware uplink and seed it with the
standard top-level directories and /system/kernel_state.json.

The directory is created if missing. A failed mount reports the error;
other commands keep serving from the sandbox.

Examples:
  kernelfs mount ~/kernelfs-disk
  kernelfs --uplink ~/kernelfs-disk ls /`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Export the file system over NFS",
	Long: `Export the file system over NFSv3 until interrupted.
Permissions and the operation log apply to every client request.
The sandbox is saved periodically and on shutdown.

Examples:
  kernelfs serve --listen 127.0.0.1:12049
  kernelfs --uplink ~/kernelfs-disk serve

Mount on macOS:
  mount_nfs -o port=12049,mountport=12049,tcp,vers=3 localhost:/ /tmp/kfs`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveListen   string
	serveAutosave time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "127.0.0.1:12049", "Address to listen on (port 0 picks a free port)")
	serveCmd.Flags().DurationVar(&serveAutosave, "autosave", 30*time.Second, "Save interval while serving (0 disables)")
	rootCmd.AddCommand(mountCmd, serveCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, args[0], true, nil)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	info := s.kfs.MountInfo()
	fmt.Fprintf(cmd.OutOrStdout(), "Mounted %s (id %s)\n", info.Root, info.ID)
	return s.close(cmd.Context())
}

func runServe(cmd *cobra.Command, args []string) error {
	var dirty atomic.Bool
	s, err := openSession(cmd, uplinkDir, false, func(o *vfs.Options) {
		o.OnChange = func(vfs.ChangeEvent) { dirty.Store(true) }
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := nfs.NewServer(s.kfs)
	addr, err := srv.Listen(serveListen)
	if err != nil {
		_ = s.close(cmd.Context())
		return err
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()
	if err := srv.WaitReady(ctx); err != nil {
		log.Warnf("nfs server not ready: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving NFS on %s (%s)\n", addr, s.kfs.MountState())

	var tick <-chan time.Time
	if serveAutosave > 0 {
		ticker := time.NewTicker(serveAutosave)
		defer ticker.Stop()
		tick = ticker.C
	}

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			serveErr = <-served
			break loop
		case serveErr = <-served:
			break loop
		case <-tick:
			if dirty.Swap(false) {
				if err := s.kfs.SaveState(ctx); err != nil {
					log.Warnf("autosave failed: %v", err)
				}
			}
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	// the final save must outlive the cancelled serve context
	if err := s.close(context.WithoutCancel(cmd.Context())); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}
