package nfs

import (
	"context"
	"net"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"kernelfs/internal/vfs"
)

func TestServerLifecycle(t *testing.T) {
	g := NewWithT(t)
	kfs, err := vfs.New(vfs.Options{Sink: vfs.NopSink{}})
	g.Expect(err).NotTo(HaveOccurred())

	srv := NewServer(kfs)
	addr, err := srv.Listen("127.0.0.1:0")
	g.Expect(err).NotTo(HaveOccurred())

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()
	g.Expect(srv.WaitReady(context.Background())).To(Succeed())

	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	g.Expect(err).NotTo(HaveOccurred())
	conn.Close()

	srv.Shutdown()
	g.Eventually(served, 5*time.Second).Should(Receive(BeNil()))

	// idempotent
	srv.Shutdown()
}

func TestServerServeWithoutListen(t *testing.T) {
	g := NewWithT(t)
	kfs, err := vfs.New(vfs.Options{Sink: vfs.NopSink{}})
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(NewServer(kfs).Serve()).To(HaveOccurred())
}
