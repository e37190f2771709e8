// Package protocol implements parsing and serialising payloads for the
// protocol that linehash servers use to communicate with their clients.
//
// This protocol aims to be
//
// - easy to implement
// - human readable
// - usable over a plain TCP stream
//
// - `Handshake` - The client declares how many lines it will send.
// - `Ack`       - The server acknowledges with the expected response size.
// - `Line`      - One line of text to be hashed.
// - `Hash`      - The server's reply to a single line.
// - `Command`   - An instruction to a server running in command mode.
//
// === General Syntax
//
// - client messages are single lines, `\r\n` delimited (a bare `\n` is fine)
// - server messages are blocks of `\r\n` delimited lines, ended by an empty line
// - no client line may be longer than MaxMessageSize
//
// === Handshake
//
//   ```
//   > 2\r\n
//   < 200 OK\r\n
//   < Type: 2\r\n
//   < Total length of all hash responses will be 76\r\n
//   < \r\n
//   ```
//
// A count that is not a non-negative integer is rejected and the server closes
// the connection.
//
//   ```
//   > -1\r\n
//   < 422 Unprocessable Entity\r\n
//   < Type: 2\r\n
//   < Error: invalid request count "-1"\r\n
//   < \r\n
//   ```
//
// === Lines
//
// Lines are sent either raw or as a JSON object carrying the number of payload
// bytes the client declared for it. The server echoes that number back.
//
//   ```
//   > {"line":"ab","num_L_bytes":12}\r\n
//   < 200 OK\r\n
//   < Type: 4\r\n
//   < Hash 0: 0x61620000000000000000000000000000\r\n
//   < L Bytes Read: 12\r\n
//   < \r\n
//   ```
//
// A line longer than 16 bytes ends the session.
//
//   ```
//   > abcdefghijklmnopq\r\n
//   < Error: Line 1 has more than 16 chars.\r\n
//   < \r\n
//   ```
//
// === Commands
//
//  ```
//    > MSGGET\r\n
//    < 200 OK\r\n
//    < <message of the day>\r\n
//    < \r\n
//
//    > MSGSTORE\r\n
//    > <new message>\r\n
//    < 200 OK\r\n
//    < \r\n
//
//    > SHUTDOWN\r\n
//    > <password>\r\n
//    < 200 OK\r\n                   or  401 Unauthorized\r\n
//    < \r\n                             password error\r\n
//                                       \r\n
//
//    > QUIT\r\n
//    < 200 OK\r\n
//    < \r\n
//  ```
//
// Unknown commands are ignored and receive no reply.
package protocol
