package servecmder

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
)

var _ = Describe("Serve Command", func() {
	var (
		tmpDir     string
		configPath string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatkeep-serve-test-*")
		Expect(err).NotTo(HaveOccurred())

		configPath = filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(configPath, nil, 0600)).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	newCmd := func(args ...string) *cobra.Command {
		cmd := NewServeCmd()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append([]string{"--config", configPath}, args...))
		return cmd
	}

	It("rejects an unknown backend", func() {
		err := newCmd("--backend", "postgres").ExecuteContext(context.Background())
		Expect(err).To(MatchError(ContainSubstring(`unknown storage backend "postgres"`)))
	})

	It("fails when the address is taken", func() {
		taken, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer taken.Close()

		err = newCmd(
			"--provider", "ollama",
			"--backend", "memory",
			"--listen", taken.Addr().String(),
		).ExecuteContext(context.Background())
		Expect(err).To(MatchError(ContainSubstring("could not listen")))
	})

	It("shuts down cleanly when its context ends", func() {
		storePath := filepath.Join(tmpDir, "conversation.json")
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- newCmd(
				"--provider", "ollama",
				"--store", storePath,
				"--listen", "127.0.0.1:0",
			).ExecuteContext(ctx)
		}()

		// The store is initialized before the listener starts.
		Eventually(func() error {
			_, err := os.Stat(storePath)
			return err
		}, 5*time.Second, 20*time.Millisecond).Should(Succeed())

		cancel()
		Eventually(done, 10*time.Second).Should(Receive(BeNil()))
	})
})
