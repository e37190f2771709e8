package session_test

import (
	"bufio"
	"context"
	"net"

	. "github.com/onsi/gomega"

	"github.com/luma/linehash/protocol"
	"github.com/luma/linehash/transport"
)

// pipeClient is the client end of a session served over net.Pipe.
type pipeClient struct {
	conn net.Conn
	r    *bufio.Reader
	done chan error
}

func serve(handler transport.Handler) *pipeClient {
	server, client := net.Pipe()
	done := make(chan error, 1)

	go func() {
		defer server.Close()
		done <- handler.Serve(context.Background(), server)
	}()

	return &pipeClient{
		conn: client,
		r:    protocol.NewReader(client),
		done: done,
	}
}

func (p *pipeClient) send(line string) {
	Expect(protocol.WriteLine(p.conn, line)).To(Succeed())
}

func (p *pipeClient) command(cmd protocol.Command, arg string) {
	Expect(protocol.WriteCommand(p.conn, cmd, arg)).To(Succeed())
}

func (p *pipeClient) response() *protocol.Response {
	resp, err := protocol.ReadResponse(p.r)
	Expect(err).To(Succeed())
	return resp
}

func (p *pipeClient) expectClosed() {
	_, err := protocol.ReadBlock(p.r)
	Expect(err).To(HaveOccurred())
}

func (p *pipeClient) close() {
	p.conn.Close()
}
