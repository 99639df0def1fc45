package cliconfig_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/papercomputeco/chatkeep/cmd/chatkeep/cliconfig"
	"github.com/papercomputeco/chatkeep/pkg/config"
	"github.com/papercomputeco/chatkeep/pkg/llm"
)

var _ = Describe("Flags", func() {
	var (
		tmpDir     string
		configPath string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatkeep-cliconfig-test-*")
		Expect(err).NotTo(HaveOccurred())
		configPath = filepath.Join(tmpDir, "config.toml")

		for _, key := range []string{
			"GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "CHATKEEP_API_KEY",
			"CHATKEEP_PROVIDER", "CHATKEEP_MODEL", "CHATKEEP_BACKEND", "CHATKEEP_STORE_PATH",
			"CHATKEEP_DEBUG",
		} {
			GinkgoT().Setenv(key, "")
		}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	writeConfig := func(content string) {
		Expect(os.WriteFile(configPath, []byte(content), 0600)).To(Succeed())
	}

	load := func(args ...string) (*config.Config, error) {
		flags := &cliconfig.Flags{}
		var (
			cfg     *config.Config
			loadErr error
		)
		cmd := &cobra.Command{
			Use: "test",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, loadErr = flags.Load(cmd)
				return nil
			},
		}
		flags.Register(cmd)
		cmd.SetArgs(append([]string{"--config", configPath}, args...))
		Expect(cmd.Execute()).To(Succeed())
		return cfg, loadErr
	}

	It("uses the defaults for an empty config file", func() {
		writeConfig("")

		cfg, err := load()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.Provider).To(Equal(config.ProviderGroq))
		Expect(cfg.Completion.Model).To(Equal("llama-3.3-70b-versatile"))
		Expect(cfg.Storage.Backend).To(Equal(config.BackendJSONFile))
	})

	It("lets flags override the config file", func() {
		writeConfig(`
[storage]
backend = "sqlite"
path = "/tmp/from-file.db"

[completion]
provider = "openai"
model = "gpt-4o"
`)

		cfg, err := load("--backend", "memory", "--model", "gpt-4.1", "--debug")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.Backend).To(Equal(config.BackendMemory))
		Expect(cfg.Storage.Path).To(Equal("/tmp/from-file.db"))
		Expect(cfg.Completion.Provider).To(Equal(config.ProviderOpenAI))
		Expect(cfg.Completion.Model).To(Equal("gpt-4.1"))
		Expect(cfg.Debug).To(BeTrue())
	})

	It("switches to the new provider's default model", func() {
		writeConfig("")

		cfg, err := load("--provider", "ollama")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.Model).To(Equal("llama3.2"))
	})

	It("keeps an explicit model across a provider switch", func() {
		writeConfig("")

		cfg, err := load("--provider", "ollama", "--model", "qwen2.5")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.Model).To(Equal("qwen2.5"))
	})

	It("does not carry one provider's key to another", func() {
		writeConfig("")
		GinkgoT().Setenv("GROQ_API_KEY", "gsk_test")
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

		cfg, err := load()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.APIKey).To(Equal("gsk_test"))

		cfg, err = load("--provider", "anthropic")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.APIKey).To(Equal("sk-ant-test"))

		cfg, err = load("--provider", "openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.APIKey).To(BeEmpty())
	})

	It("rejects unknown values", func() {
		writeConfig("")

		_, err := load("--backend", "postgres")
		Expect(err).To(MatchError(ContainSubstring(`unknown storage backend "postgres"`)))

		_, err = load("--provider", "mistral")
		Expect(err).To(MatchError(ContainSubstring(`unknown completion provider "mistral"`)))
	})

	It("fails on a missing explicit config file", func() {
		_, err := load()
		Expect(err).To(MatchError(ContainSubstring("could not read config")))
	})
})

var _ = Describe("EnsureAPIKey", func() {
	It("is a no-op for providers without keys", func() {
		cfg := config.Default()
		cfg.Completion.Provider = config.ProviderOllama

		Expect(cliconfig.EnsureAPIKey(cfg, strings.NewReader(""), &bytes.Buffer{})).To(Succeed())
	})

	It("is a no-op when the key is already set", func() {
		cfg := config.Default()
		cfg.Completion.APIKey = "gsk_test"

		Expect(cliconfig.EnsureAPIKey(cfg, strings.NewReader(""), &bytes.Buffer{})).To(Succeed())
	})

	It("names the variable to set when it cannot prompt", func() {
		cfg := config.Default()
		out := &bytes.Buffer{}

		err := cliconfig.EnsureAPIKey(cfg, strings.NewReader("gsk_typed\n"), out)
		Expect(err).To(MatchError("no API key for groq: set GROQ_API_KEY or completion.api_key"))
		Expect(out.String()).To(BeEmpty())
	})
})

var _ = Describe("Logger", func() {
	It("is silent for one-shot commands", func() {
		log := cliconfig.Logger(config.Default(), false)
		Expect(log.Core().Enabled(zapcore.ErrorLevel)).To(BeFalse())
	})

	It("logs for long-running commands", func() {
		log := cliconfig.Logger(config.Default(), true)
		Expect(log.Core().Enabled(zapcore.InfoLevel)).To(BeTrue())
		Expect(log.Core().Enabled(zapcore.DebugLevel)).To(BeFalse())
	})

	It("logs at debug level when debugging", func() {
		cfg := config.Default()
		cfg.Debug = true

		log := cliconfig.Logger(cfg, false)
		Expect(log.Core().Enabled(zapcore.DebugLevel)).To(BeTrue())
	})
})

var _ = Describe("OpenExchange", func() {
	It("joins the configured store and provider", func() {
		ctx := context.Background()
		cfg := config.Default()
		cfg.Storage.Backend = config.BackendMemory
		cfg.Completion.Provider = config.ProviderOllama

		ex, store, err := cliconfig.OpenExchange(ctx, cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store.Save(ctx, llm.Conversation{llm.UserTurn("hi"), llm.AssistantTurn("hello!")})).To(Succeed())
		conv, err := ex.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(conv).To(HaveLen(2))
	})

	It("rejects an unsupported provider", func() {
		cfg := config.Default()
		cfg.Storage.Backend = config.BackendMemory
		cfg.Completion.Provider = "mistral"

		_, _, err := cliconfig.OpenExchange(context.Background(), cfg, zap.NewNop())
		Expect(err).To(MatchError("unsupported provider: mistral"))
	})
})
