package commands

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kernelfs/internal/artifacts"
	"kernelfs/internal/config"
	"kernelfs/internal/storage"
	"kernelfs/internal/vfs"
)

// session is one loaded KernelFS plus the store it persists to
type session struct {
	kfs   *vfs.KernelFS
	store storage.Store
}

// openSession loads saved state and, when uplink is set, mounts it.
// A failed mount leaves the sandbox serving; strict turns that into an error.
func openSession(cmd *cobra.Command, uplink string, strict bool, tweak func(*vfs.Options)) (*session, error) {
	ctx := cmd.Context()
	s := settings
	if s == nil {
		defaults := config.Defaults()
		s = &defaults
	}

	dir := stateDir
	if dir == "" {
		dir = config.StateDir()
	}
	backend := stateBackend
	if backend == "" {
		backend = s.StateBackend
	}
	store, err := storage.Open(backend, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	opts := vfs.Options{
		Owner:       s.Owner,
		LogCapacity: s.LogCapacity,
		MaxFileSize: s.MaxFileSize,
		SeedDirs:    s.SeedDirs,
		StateKey:    s.StateKey,
		IgnoreFile:  s.IgnoreFile,
		HandleTTL:   s.HandleCacheTTL(),
		Store:       store,
		Sink:        cliSink(cmd.ErrOrStderr()),

		DefaultIgnore: artifacts.DefaultIgnore,
	}
	if uplink != "" {
		opts.Provider = vfs.DirProvider{Dir: uplink}
	}
	if tweak != nil {
		tweak(&opts)
	}

	kfs, err := vfs.New(opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := kfs.LoadState(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if uplink != "" {
		if err := kfs.Mount(ctx); err != nil && strict {
			store.Close()
			return nil, err
		}
	}
	return &session{kfs: kfs, store: store}, nil
}

// withSession runs fn against a loaded KernelFS and saves state afterwards,
// including when fn fails, so failed attempts stay in the operation log.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, kfs *vfs.KernelFS) error) error {
	s, err := openSession(cmd, uplinkDir, false, nil)
	if err != nil {
		return err
	}
	runErr := fn(cmd.Context(), s.kfs)
	if err := s.close(cmd.Context()); err != nil && runErr == nil {
		return err
	}
	return runErr
}

// close saves state and releases the store
func (s *session) close(ctx context.Context) error {
	saveErr := s.kfs.SaveState(ctx)
	if err := s.store.Close(); err != nil {
		log.Warnf("failed to close state store: %v", err)
	}
	return saveErr
}

// cliSink prints warnings and errors for the user; info goes to the log
func cliSink(w io.Writer) vfs.NotificationSink {
	return vfs.SinkFunc(func(message string, severity vfs.Severity) {
		if severity == vfs.SeverityInfo {
			vfs.LogSink{}.Notify(message, severity)
			return
		}
		fmt.Fprintf(w, "%s: %s\n", severity, message)
	})
}
