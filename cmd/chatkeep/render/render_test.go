package render_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatkeep/cmd/chatkeep/render"
	"github.com/papercomputeco/chatkeep/pkg/llm"
)

var _ = Describe("Printer", func() {
	var (
		buf *bytes.Buffer
		p   *render.Printer
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		p = render.New(buf)
	})

	It("prints plain labelled turns to a non-terminal", func() {
		Expect(p.Conversation(llm.Conversation{
			llm.UserTurn("hi"),
			llm.AssistantTurn("**hello!**"),
		})).To(Succeed())

		Expect(buf.String()).To(Equal("user:\nhi\n\nassistant:\n**hello!**\n"))
		Expect(buf.String()).NotTo(ContainSubstring("\x1b["))
	})

	It("reports an empty conversation", func() {
		Expect(p.Conversation(nil)).To(Succeed())
		Expect(buf.String()).To(Equal("No conversation yet.\n"))
	})

	It("wraps long lines", func() {
		Expect(p.Markdown(strings.Repeat("chatkeep ", 30))).To(Succeed())

		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		Expect(len(lines)).To(BeNumerically(">", 1))
		for _, line := range lines {
			Expect(len(line)).To(BeNumerically("<=", 80))
		}
	})

	It("prints errors and muted lines without styling", func() {
		p.Error("Error: boom")
		p.Muted("quiet")
		Expect(buf.String()).To(Equal("Error: boom\nquiet\n"))
	})
})
