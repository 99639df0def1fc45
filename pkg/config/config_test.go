package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func lookupFrom(env map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

var _ = Describe("Default", func() {
	It("targets Groq's llama model with a local JSON store", func() {
		cfg := Default()

		gomega.Expect(cfg.Completion.Provider).To(gomega.Equal(ProviderGroq))
		gomega.Expect(cfg.Completion.Model).To(gomega.Equal("llama-3.3-70b-versatile"))
		gomega.Expect(cfg.Storage.Backend).To(gomega.Equal(BackendJSONFile))
		gomega.Expect(cfg.Storage.OnCorrupt).To(gomega.Equal(OnCorruptReset))
		gomega.Expect(cfg.Completion.Timeout.Duration).To(gomega.Equal(5 * time.Minute))
		gomega.Expect(cfg.Validate()).To(gomega.Succeed())
	})
})

var _ = Describe("applyEnv", func() {
	It("reads the provider key from its conventional variable", func() {
		cfg := Default()
		gomega.Expect(cfg.applyEnv(lookupFrom(map[string]string{"GROQ_API_KEY": "gsk_test"}))).To(gomega.Succeed())

		gomega.Expect(cfg.Completion.APIKey).To(gomega.Equal("gsk_test"))
		gomega.Expect(cfg.NeedsAPIKey()).To(gomega.BeFalse())
	})

	It("switches the default model along with the provider", func() {
		cfg := Default()
		gomega.Expect(cfg.applyEnv(lookupFrom(map[string]string{
			"CHATKEEP_PROVIDER": ProviderOllama,
		}))).To(gomega.Succeed())

		gomega.Expect(cfg.Completion.Provider).To(gomega.Equal(ProviderOllama))
		gomega.Expect(cfg.Completion.Model).To(gomega.Equal("llama3.2"))
		gomega.Expect(cfg.NeedsAPIKey()).To(gomega.BeFalse())
	})

	It("keeps an explicit model when switching provider", func() {
		cfg := Default()
		gomega.Expect(cfg.applyEnv(lookupFrom(map[string]string{
			"CHATKEEP_PROVIDER": ProviderOpenAI,
			"CHATKEEP_MODEL":    "gpt-4.1",
		}))).To(gomega.Succeed())

		gomega.Expect(cfg.Completion.Model).To(gomega.Equal("gpt-4.1"))
	})

	It("lets CHATKEEP_API_KEY override the provider variable", func() {
		cfg := Default()
		gomega.Expect(cfg.applyEnv(lookupFrom(map[string]string{
			"GROQ_API_KEY":     "from-groq",
			"CHATKEEP_API_KEY": "from-chatkeep",
		}))).To(gomega.Succeed())

		gomega.Expect(cfg.Completion.APIKey).To(gomega.Equal("from-chatkeep"))
	})

	It("rejects a malformed debug flag", func() {
		cfg := Default()
		err := cfg.applyEnv(lookupFrom(map[string]string{"CHATKEEP_DEBUG": "sometimes"}))
		gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("CHATKEEP_DEBUG")))
	})
})

var _ = Describe("Validate", func() {
	DescribeTable("rejects unknown values",
		func(mutate func(*Config), msg string) {
			cfg := Default()
			mutate(cfg)
			gomega.Expect(cfg.Validate()).To(gomega.MatchError(gomega.ContainSubstring(msg)))
		},
		Entry("backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage backend"),
		Entry("corrupt policy", func(c *Config) { c.Storage.OnCorrupt = "ignore" }, "on_corrupt"),
		Entry("provider", func(c *Config) { c.Completion.Provider = "bard" }, "completion provider"),
		Entry("model", func(c *Config) { c.Completion.Model = "" }, "model is required"),
		Entry("max tokens", func(c *Config) { c.Completion.MaxTokens = -1 }, "max_tokens"),
	)
})

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("decodes a TOML file over the defaults", func() {
		path := filepath.Join(dir, "config.toml")
		gomega.Expect(os.WriteFile(path, []byte(`
debug = true

[server]
listen = "127.0.0.1:9000"

[storage]
backend = "sqlite"
path = "/tmp/chat.db"
on_corrupt = "strict"

[completion]
provider = "ollama"
model = "mistral"
base_url = "http://localhost:11434"
temperature = 0.2
timeout = "90s"
`), 0600)).To(gomega.Succeed())

		cfg, err := Load(path)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(cfg.Debug).To(gomega.BeTrue())
		gomega.Expect(cfg.Server.Listen).To(gomega.Equal("127.0.0.1:9000"))
		gomega.Expect(cfg.Server.CORSOrigins).To(gomega.Equal("*"))
		gomega.Expect(cfg.Storage.Backend).To(gomega.Equal(BackendSQLite))
		gomega.Expect(cfg.Storage.OnCorrupt).To(gomega.Equal(OnCorruptStrict))
		gomega.Expect(cfg.Completion.Model).To(gomega.Equal("mistral"))
		gomega.Expect(*cfg.Completion.Temperature).To(gomega.BeNumerically("~", 0.2))
		gomega.Expect(cfg.Completion.Timeout.Duration).To(gomega.Equal(90 * time.Second))
		gomega.Expect(cfg.Completion.MaxTokens).To(gomega.Equal(1024))
	})

	It("fails when an explicit file is missing", func() {
		_, err := Load(filepath.Join(dir, "missing.toml"))
		gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("could not read config")))
	})

	It("fails on an invalid value in the file", func() {
		path := filepath.Join(dir, "bad.toml")
		gomega.Expect(os.WriteFile(path, []byte("[storage]\nbackend = \"s3\"\n"), 0600)).To(gomega.Succeed())

		_, err := Load(path)
		gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring(`unknown storage backend "s3"`)))
	})
})
