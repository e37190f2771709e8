package transport_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/linehash/transport"
)

// echo replies to every line with the same line upper cased, and fails the
// session on "FAIL" or panics on "PANIC".
var echo = transport.HandlerFunc(func(ctx context.Context, conn net.Conn) error {
	r := bufio.NewReader(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)

		switch line {
		case "FAIL":
			return errors.New("session failed")
		case "PANIC":
			panic("session panicked")
		case "BYE":
			return nil
		}

		if _, err := conn.Write([]byte(strings.ToUpper(line) + "\n")); err != nil {
			return err
		}
	}
})

func makeTCPServer(handler transport.Handler, reuseport bool, numListeners int) *transport.TCP {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	tcp := transport.NewTCP(transport.Options{
		Log:          log,
		Host:         "127.0.0.1",
		Port:         0,
		NumListeners: numListeners,
		Reuseport:    reuseport,
		Handler:      handler,
	})

	Expect(tcp.Start(context.Background())).To(Succeed())

	return tcp
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(tcp *transport.TCP) *testClient {
	conn, err := net.Dial("tcp", tcp.Addr().String())
	Expect(err).To(Succeed())

	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) roundTrip(line string) string {
	Expect(c.conn.SetDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

	_, err := c.conn.Write([]byte(line + "\n"))
	Expect(err).To(Succeed())

	reply, err := c.r.ReadString('\n')
	Expect(err).To(Succeed())

	return strings.TrimSpace(reply)
}

func (c *testClient) send(line string) {
	_, err := c.conn.Write([]byte(line + "\n"))
	Expect(err).To(Succeed())
}

func waitForClose(c *testClient) {
	Expect(c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

	_, err := c.r.ReadByte()
	Expect(err).To(HaveOccurred())

	var netErr net.Error
	if errors.As(err, &netErr) {
		Expect(netErr.Timeout()).To(BeFalse(), "The client was never closed by the server")
	}
}

func dialFails(addr string) func() error {
	return func() error {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
		}

		return err
	}
}

var _ = Describe("transport", func() {
	Describe("TCP", func() {
		It("listens on the bound address", func() {
			tcp := makeTCPServer(echo, false, 0)
			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			Expect(tcp.Addr()).NotTo(BeNil())

			client := dial(tcp)
			defer client.conn.Close()

			Expect(client.roundTrip("hello")).To(Equal("HELLO"))
		})

		It("has no address before Start", func() {
			tcp := transport.NewTCP(transport.Options{Host: "127.0.0.1"})
			Expect(tcp.Addr()).To(BeNil())
		})

		It("refuses to start twice", func() {
			tcp := makeTCPServer(echo, false, 0)
			defer tcp.Close()

			Expect(tcp.Start(context.Background())).To(MatchError(transport.ErrAlreadyStarted))
		})

		It("fails to start when the port is taken", func() {
			tcp := makeTCPServer(echo, false, 0)
			defer tcp.Close()

			_, portStr, err := net.SplitHostPort(tcp.Addr().String())
			Expect(err).To(Succeed())

			port, err := strconv.Atoi(portStr)
			Expect(err).To(Succeed())

			other := transport.NewTCP(transport.Options{
				Host:    "127.0.0.1",
				Port:    port,
				Handler: echo,
			})

			Expect(other.Start(context.Background())).NotTo(Succeed())
		})

		It("shares the port between listeners with reuseport", func() {
			tcp := makeTCPServer(echo, true, 4)
			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			for i := 0; i < 10; i++ {
				client := dial(tcp)
				Expect(client.roundTrip("ping")).To(Equal("PING"))
				client.conn.Close()
			}
		})

		It("serves many clients at once", func() {
			tcp := makeTCPServer(echo, false, 0)
			defer tcp.Close()

			clients := make([]*testClient, 10)
			for i := range clients {
				clients[i] = dial(tcp)
				defer clients[i].conn.Close()
			}

			for i := len(clients) - 1; i >= 0; i-- {
				Expect(clients[i].roundTrip("abc")).To(Equal("ABC"))
			}
		})

		It("closes a connection once its session ends", func() {
			tcp := makeTCPServer(echo, false, 0)
			defer tcp.Close()

			client := dial(tcp)
			defer client.conn.Close()

			client.send("BYE")
			waitForClose(client)
		})

		It("keeps serving other clients when a session fails or panics", func() {
			tcp := makeTCPServer(echo, false, 0)
			defer tcp.Close()

			healthy := dial(tcp)
			defer healthy.conn.Close()

			failing := dial(tcp)
			defer failing.conn.Close()

			panicking := dial(tcp)
			defer panicking.conn.Close()

			failing.send("FAIL")
			waitForClose(failing)

			panicking.send("PANIC")
			waitForClose(panicking)

			Expect(healthy.roundTrip("still")).To(Equal("STILL"))

			late := dial(tcp)
			defer late.conn.Close()
			Expect(late.roundTrip("late")).To(Equal("LATE"))
		})

		It("closes the connection when no handler is configured", func() {
			tcp := makeTCPServer(nil, false, 0)
			defer tcp.Close()

			client := dial(tcp)
			defer client.conn.Close()

			waitForClose(client)
		})

		Describe("StopAccepting", func() {
			It("refuses new connections but keeps established sessions", func() {
				tcp := makeTCPServer(echo, false, 0)
				defer tcp.Close()

				client := dial(tcp)
				defer client.conn.Close()
				Expect(client.roundTrip("one")).To(Equal("ONE"))

				Expect(tcp.StopAccepting()).To(Succeed())
				Expect(tcp.Done()).To(BeClosed())

				Eventually(dialFails(tcp.Addr().String())).Should(HaveOccurred())
				Expect(client.roundTrip("two")).To(Equal("TWO"))
			})

			It("can be called from inside a handler", func() {
				var tcp *transport.TCP
				tcp = makeTCPServer(transport.HandlerFunc(func(ctx context.Context, conn net.Conn) error {
					_ = tcp.StopAccepting()
					_, err := conn.Write([]byte("stopped\n"))
					return err
				}), false, 0)
				defer tcp.Close()

				client := dial(tcp)
				defer client.conn.Close()

				reply, err := client.r.ReadString('\n')
				Expect(err).To(Succeed())
				Expect(reply).To(Equal("stopped\n"))

				Eventually(tcp.Done()).Should(BeClosed())
			})
		})

		Describe("Shutdown", func() {
			It("waits for active sessions to finish", func() {
				tcp := makeTCPServer(echo, false, 0)

				client := dial(tcp)
				defer client.conn.Close()
				Expect(client.roundTrip("one")).To(Equal("ONE"))

				var finished int32
				go func() {
					defer GinkgoRecover()

					Expect(tcp.Shutdown(context.Background())).To(Succeed())
					atomic.StoreInt32(&finished, 1)
				}()

				Consistently(func() int32 { return atomic.LoadInt32(&finished) }, "100ms").Should(BeZero())
				Expect(client.roundTrip("two")).To(Equal("TWO"))

				client.send("BYE")
				Eventually(func() int32 { return atomic.LoadInt32(&finished) }).Should(Equal(int32(1)))
			})

			It("closes sessions still active when the context ends", func() {
				tcp := makeTCPServer(echo, false, 0)

				client := dial(tcp)
				defer client.conn.Close()
				Expect(client.roundTrip("one")).To(Equal("ONE"))

				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				defer cancel()

				Expect(tcp.Shutdown(ctx)).To(Succeed())
				waitForClose(client)
			})
		})

		Describe("Close", func() {
			It("closes active connections", func() {
				tcp := makeTCPServer(echo, false, 0)

				client := dial(tcp)
				defer client.conn.Close()
				Expect(client.roundTrip("one")).To(Equal("ONE"))

				Expect(tcp.Close()).To(Succeed())
				waitForClose(client)
				Expect(dialFails(tcp.Addr().String())()).To(HaveOccurred())
			})

			It("can follow StopAccepting", func() {
				tcp := makeTCPServer(echo, false, 0)

				Expect(tcp.StopAccepting()).To(Succeed())
				Expect(tcp.Close()).To(Succeed())
			})
		})
	})
})
