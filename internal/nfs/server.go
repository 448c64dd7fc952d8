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

package nfs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"kernelfs/internal/util"
	"kernelfs/internal/vfs"
)

// handleCacheSize bounds the number of file handles go-nfs remembers
const handleCacheSize = 65536

// Server wraps the go-nfs server for one KernelFS
type Server struct {
	mu       sync.Mutex
	listener net.Listener
	server   *nfs.Server
	handler  nfs.Handler
	cancel   context.CancelFunc
	closed   bool
	serving  atomic.Bool
}

// NewServer creates an NFS server exporting kfs at "/"
func NewServer(kfs *vfs.KernelFS) *Server {
	// Match go-nfs verbosity to ours
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	billyFS := NewAdapter(ctx, kfs)
	handler := nfshelper.NewNullAuthHandler(billyFS)
	cacheHelper := nfshelper.NewCachingHandler(handler, handleCacheSize)

	return &Server{
		server: &nfs.Server{
			Handler: cacheHelper,
			Context: ctx,
		},
		handler: cacheHelper,
		cancel:  cancel,
	}
}

// Listen binds addr. Use port 0 to pick a free port; the bound address is returned.
func (s *Server) Listen(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	log.Infof("[NFS] listening on %s", listener.Addr())
	return listener.Addr(), nil
}

// Serve accepts connections until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("nfs server: Serve called before Listen")
	}
	s.serving.Store(true)
	err := s.server.Serve(listener)
	s.serving.Store(false)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	return err
}

// WaitReady blocks until Serve is accepting connections
func (s *Server) WaitReady(ctx context.Context) error {
	return util.PollUntil(ctx, util.PollConfig{Timeout: 5 * time.Second, Interval: 10 * time.Millisecond}, s.serving.Load)
}

// ListenAndServe combines Listen and Serve
func (s *Server) ListenAndServe(addr string) error {
	if _, err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting connections and cancels in-flight handlers
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	// Settle time for in-flight requests after listener close
	time.Sleep(50 * time.Millisecond)

	if s.cancel != nil {
		s.cancel()
	}
	log.Infof("[NFS] server stopped")
}
