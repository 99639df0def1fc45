package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatkeep/pkg/llm"
	"github.com/papercomputeco/chatkeep/pkg/storage/jsonfile"
	"github.com/papercomputeco/chatkeep/pkg/storage/watch"
)

// countingStore counts loads that reach the underlying store.
type countingStore struct {
	*jsonfile.Store
	loads int
}

func (c *countingStore) Load(ctx context.Context) (llm.Conversation, error) {
	c.loads++
	return c.Store.Load(ctx)
}

var _ = Describe("Store", func() {
	var (
		ctx     context.Context
		path    string
		inner   *countingStore
		store   *watch.Store
		initial llm.Conversation
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "conversation.json")
		initial = llm.Conversation{llm.UserTurn("hi"), llm.AssistantTurn("hello!")}

		file, err := jsonfile.New(path, jsonfile.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(file.Save(ctx, initial)).To(Succeed())

		inner = &countingStore{Store: file}
		store, err = watch.New(inner, path, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("serves repeated loads from the cache", func() {
		first, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal(initial))

		second, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(initial))
		Expect(inner.loads).To(Equal(1))
	})

	It("hands out copies that do not alias the cache", func() {
		first, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		first[0].Content = "mutated"

		second, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(second[0].Content).To(Equal("hi"))
	})

	It("writes through on save", func() {
		next := initial.Append(llm.UserTurn("again"), llm.AssistantTurn("sure"))
		Expect(store.Save(ctx, next)).To(Succeed())

		other, err := jsonfile.New(path, jsonfile.Options{})
		Expect(err).NotTo(HaveOccurred())
		onDisk, err := other.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(onDisk).To(Equal(next))
	})

	It("reloads after another writer changes the file", func() {
		_, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())

		external := llm.Conversation{llm.UserTurn("written elsewhere"), llm.AssistantTurn("ok")}
		other, err := jsonfile.New(path, jsonfile.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(other.Save(ctx, external)).To(Succeed())

		Eventually(store.Invalidated()).WithTimeout(2 * time.Second).Should(Receive())
		Eventually(func() (llm.Conversation, error) {
			return store.Load(ctx)
		}).WithTimeout(2 * time.Second).Should(Equal(external))
	})

	It("sees the file disappear", func() {
		_, err := store.Load(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Remove(path)).To(Succeed())

		Eventually(func() (llm.Conversation, error) {
			return store.Load(ctx)
		}).WithTimeout(2 * time.Second).Should(BeEmpty())
	})

	It("delegates locking to the file store", func() {
		unlock, err := store.Lock(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer unlock()

		other, err := jsonfile.New(path, jsonfile.Options{})
		Expect(err).NotTo(HaveOccurred())
		short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = other.Lock(short)
		Expect(err).To(HaveOccurred())
	})

	It("reads through the cache once the lock is held", func() {
		// Watch an unrelated directory so no change event can drop the cache.
		quiet, err := watch.New(inner, filepath.Join(GinkgoT().TempDir(), "elsewhere.json"), nil)
		Expect(err).NotTo(HaveOccurred())
		defer quiet.Close()

		_, err = quiet.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(inner.loads).To(Equal(1))

		external := initial.Append(llm.UserTurn("from another process"), llm.AssistantTurn("ok"))
		other, err := jsonfile.New(path, jsonfile.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(other.Save(ctx, external)).To(Succeed())

		stale, err := quiet.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stale).To(Equal(initial))

		unlock, err := quiet.Lock(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer unlock()

		fresh, err := quiet.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh).To(Equal(external))
		Expect(inner.loads).To(Equal(2))
	})
})
