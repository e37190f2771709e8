package client_test

import (
	"bytes"
	"context"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/linehash/client"
	"github.com/luma/linehash/digest"
	"github.com/luma/linehash/protocol"
	"github.com/luma/linehash/transport"
)

var _ = Describe("Dispatcher", func() {
	var (
		tcp  *transport.TCP
		conn *client.Conn
		out  *bytes.Buffer
	)

	ctx := context.Background()

	BeforeEach(func() {
		tcp = startHashServer()
		conn = connect(tcp)
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		conn.Disconnect()
		Expect(tcp.Close()).To(Succeed())
	})

	run := func(limit int, lines ...string) error {
		_, err := conn.Handshake(ctx, len(lines))
		Expect(err).To(Succeed())

		reqs := make([]protocol.LineRequest, 0, len(lines))
		for _, line := range lines {
			reqs = append(reqs, protocol.NewLineRequest(line))
		}

		return client.NewDispatcher(conn, out, limit, zap.NewNop()).Run(ctx, reqs)
	}

	It("prints a reply for every line", func() {
		Expect(run(0, "ab", "cd")).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Hash 1: "))
		Expect(out.String()).To(ContainSubstring("Hash 2: "))
		Expect(out.String()).To(ContainSubstring(digest.MustEncode("ab")))
		Expect(out.String()).To(ContainSubstring(digest.MustEncode("cd")))
		Expect(strings.Count(out.String(), "200 OK")).To(Equal(2))
	})

	It("honours a concurrency limit", func() {
		lines := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		Expect(run(2, lines...)).To(Succeed())

		for _, line := range lines {
			Expect(out.String()).To(ContainSubstring(digest.MustEncode(line)))
		}
	})

	It("keeps going after a failed line and reports every failure", func() {
		err := run(1, "ab", "abcdefghijklmnopq", "cd")
		Expect(err).To(HaveOccurred())

		// The server hangs up after the long line, so anything sent later
		// fails too
		Expect(len(multierr.Errors(err))).To(BeNumerically(">=", 1))
		Expect(out.String()).To(ContainSubstring("has more than 16 chars."))
	})

	It("does nothing for an empty batch", func() {
		Expect(client.NewDispatcher(conn, out, 0, nil).Run(ctx, nil)).To(Succeed())
		Expect(out.String()).To(BeEmpty())
	})
})
