package session_test

import (
	"errors"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/linehash/digest"
	"github.com/luma/linehash/protocol"
	"github.com/luma/linehash/session"
)

var _ = Describe("HashHandler", func() {
	var client *pipeClient

	BeforeEach(func() {
		client = serve(session.NewHashHandler(session.Options{Log: zap.NewNop()}))
	})

	AfterEach(func() {
		client.close()
	})

	It("acknowledges the handshake with 38 bytes per request", func() {
		client.send("5")

		resp := client.response()
		Expect(resp.IsOK()).To(BeTrue())
		Expect(resp.Type).To(Equal(protocol.TypeAck))
		Expect(resp.Total).To(Equal(190))
	})

	It("answers every declared line with its digest and index", func() {
		client.send("2")
		Expect(client.response().Total).To(Equal(76))

		client.send("ab")
		first := client.response()
		Expect(first.Type).To(Equal(protocol.TypeHash))
		Expect(first.Index).To(Equal(0))
		Expect(first.Digest).To(Equal("0x6162" + strings.Repeat("0", 28)))
		Expect(first.HasLBytes).To(BeFalse())

		client.send("cd")
		second := client.response()
		Expect(second.Index).To(Equal(1))
		Expect(second.Digest).To(Equal("0x6364" + strings.Repeat("0", 28)))

		Eventually(client.done).Should(Receive(BeNil()))
		client.expectClosed()
	})

	It("echoes the declared byte count of structured lines", func() {
		client.send("1")
		client.response()

		client.send(`{"line":"  hi  ","num_L_bytes":17}`)
		resp := client.response()
		Expect(resp.Digest).To(Equal(digest.MustEncode("hi")))
		Expect(resp.HasLBytes).To(BeTrue())
		Expect(resp.LBytes).To(Equal(17))
	})

	It("closes straight after the ack when no requests are declared", func() {
		client.send("0")
		Expect(client.response().Total).To(Equal(0))

		Eventually(client.done).Should(Receive(BeNil()))
		client.expectClosed()
	})

	It("rejects a 17 character line and stops processing", func() {
		client.send("3")
		client.response()

		client.send("ok")
		Expect(client.response().Index).To(Equal(0))

		client.send("abcdefghijklmnopq")
		resp := client.response()
		Expect(resp.ErrorOrNil()).To(MatchError("Error: Line 2 has more than 16 chars."))

		var err error
		Eventually(client.done).Should(Receive(&err))

		var lineErr *session.LineTooLongError
		Expect(errors.As(err, &lineErr)).To(BeTrue())
		Expect(lineErr.LineNumber).To(Equal(2))
		Expect(errors.Is(err, digest.ErrLineTooLong)).To(BeTrue())

		client.expectClosed()
	})

	It("accepts a line of exactly 16 characters", func() {
		client.send("1")
		client.response()

		client.send("abcdefghijklmnop")
		Expect(client.response().Digest).To(Equal("0x6162636465666768696a6b6c6d6e6f70"))
	})

	It("treats an oversized message as a too long line", func() {
		client.send("1")
		client.response()

		// The server stops reading part way through, so the tail of this
		// write fails once it closes the connection
		go func() {
			_, _ = client.conn.Write([]byte(strings.Repeat("x", protocol.MaxMessageSize+10) + "\r\n"))
		}()

		resp := client.response()
		Expect(resp.ErrorOrNil()).To(MatchError("Error: Line 1 has more than 16 chars."))
	})

	It("rejects a negative count and closes without further reads", func() {
		client.send("-1")

		resp := client.response()
		Expect(resp.Status).To(Equal(protocol.StatusUnprocessableEntity))
		Expect(resp.Body).To(ContainElement(`Error: invalid request count "-1"`))

		var err error
		Eventually(client.done).Should(Receive(&err))
		Expect(errors.Is(err, protocol.ErrInvalidCount)).To(BeTrue())

		client.expectClosed()
	})

	It("rejects a count that is not a number", func() {
		client.send("lots")

		Expect(client.response().Status).To(Equal(protocol.StatusUnprocessableEntity))
	})

	It("reports a client that disconnects early as incomplete", func() {
		client.send("2")
		client.response()

		client.send("ab")
		client.response()

		client.close()

		var err error
		Eventually(client.done).Should(Receive(&err))
		Expect(errors.Is(err, session.ErrIncomplete)).To(BeTrue())
	})
})

var _ = Describe("HashHandler read timeout", func() {
	It("gives up on a silent client", func() {
		client := serve(session.NewHashHandler(session.Options{
			ReadTimeout: 20 * time.Millisecond,
			Log:         zap.NewNop(),
		}))
		defer client.close()

		var err error
		Eventually(client.done).Should(Receive(&err))
		Expect(errors.Is(err, os.ErrDeadlineExceeded)).To(BeTrue())
	})
})

var _ = Describe("ParseMode()", func() {
	It("parses known modes", func() {
		Expect(session.ParseMode("hash")).To(Equal(session.ModeHash))
		Expect(session.ParseMode(" Command ")).To(Equal(session.ModeCommand))
	})

	It("rejects unknown modes", func() {
		_, err := session.ParseMode("chat")
		Expect(err).To(MatchError(session.ErrUnknownMode))
	})
})

var _ = Describe("State", func() {
	It("names every state", func() {
		Expect(session.AwaitCount.String()).To(Equal("AWAIT_COUNT"))
		Expect(session.AckSent.String()).To(Equal("ACK_SENT"))
		Expect(session.AwaitLine.String()).To(Equal("AWAIT_LINE"))
		Expect(session.LineAnswered.String()).To(Equal("LINE_ANSWERED"))
		Expect(session.Closed.String()).To(Equal("CLOSED"))
	})
})
