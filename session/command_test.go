package session_test

import (
	"context"
	"sync/atomic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/linehash/protocol"
	"github.com/luma/linehash/session"
	"github.com/luma/linehash/storage"
)

var _ = Describe("CommandHandler", func() {
	var (
		store     *storage.InmemoryStore
		shutdowns int32
		handler   *session.CommandHandler
	)

	BeforeEach(func() {
		store = storage.NewInmemoryStore()
		atomic.StoreInt32(&shutdowns, 0)

		handler = session.NewCommandHandler(session.CommandOptions{
			Options:  session.Options{Log: zap.NewNop()},
			Store:    store,
			Password: "123!abc",
			OnShutdown: func() {
				atomic.AddInt32(&shutdowns, 1)
			},
		})
	})

	AfterEach(func() {
		store.Close()
	})

	It("returns an empty message of the day before one is stored", func() {
		client := serve(handler)
		defer client.close()

		client.command(protocol.MSGGET, "")
		Expect(client.response().Lines).To(Equal([]string{"200 OK"}))
	})

	It("returns the current message of the day", func() {
		Expect(store.Set(context.Background(), storage.MessageOfTheDayKey, "An apple a day")).To(Succeed())

		client := serve(handler)
		defer client.close()

		client.command(protocol.MSGGET, "")
		Expect(client.response().Lines).To(Equal([]string{"200 OK", "An apple a day"}))
	})

	It("lets a second client read a message stored by the first", func() {
		writer := serve(handler)
		defer writer.close()

		writer.command(protocol.MSGSTORE, "hello")
		Expect(writer.response().IsOK()).To(BeTrue())

		reader := serve(handler)
		defer reader.close()

		reader.command(protocol.MSGGET, "")
		Expect(reader.response().Lines).To(Equal([]string{"200 OK", "hello"}))
	})

	It("ignores unknown commands", func() {
		client := serve(handler)
		defer client.close()

		client.send("MSGDELETE")
		client.command(protocol.MSGSTORE, "still here")

		Expect(client.response().Lines).To(Equal([]string{"200 OK"}))
		Expect(store.Get(context.Background(), storage.MessageOfTheDayKey)).To(Equal("still here"))
	})

	It("acknowledges QUIT and closes", func() {
		client := serve(handler)
		defer client.close()

		client.command(protocol.QUIT, "")
		Expect(client.response().IsOK()).To(BeTrue())

		Eventually(client.done).Should(Receive(BeNil()))
		client.expectClosed()
	})

	It("keeps the session open after a wrong SHUTDOWN password", func() {
		client := serve(handler)
		defer client.close()

		client.command(protocol.SHUTDOWN, "guess")
		resp := client.response()
		Expect(resp.Status).To(Equal(protocol.StatusUnauthorized))
		Expect(resp.Body).To(Equal([]string{"password error"}))
		Expect(atomic.LoadInt32(&shutdowns)).To(BeZero())

		client.command(protocol.MSGGET, "")
		Expect(client.response().IsOK()).To(BeTrue())
	})

	It("stops the server after the correct SHUTDOWN password", func() {
		client := serve(handler)
		defer client.close()

		client.command(protocol.SHUTDOWN, "123!abc")
		Expect(client.response().IsOK()).To(BeTrue())

		Eventually(client.done).Should(Receive(BeNil()))
		Expect(atomic.LoadInt32(&shutdowns)).To(Equal(int32(1)))
	})
})
