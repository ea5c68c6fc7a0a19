// Package transport carries post office pulls between instances.
//
// Key concepts:
//   - Transport: listens and dials framed connections of one Kind (tcp, quic,
//     winpipe, mem), selected by the scheme of a location string
//   - Location: "scheme:addr1,addr2,..." as advertised by a Server
//   - Server: serves pull requests through a Handler that may defer its
//     answer until a wait becomes ready
//   - Client: one request in flight at a time against one location
//   - ClientPool: at most one Client per peer instance, on its best-ranked
//     location
package transport
