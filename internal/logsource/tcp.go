package logsource

import "net"

// FromConn wraps a network connection. Closing the source closes conn.
func FromConn(conn net.Conn, charset string) (*Source, error) {
	src, err := newSource(KindTCP, conn.RemoteAddr().String(), conn, charset)
	if err != nil {
		return nil, err
	}
	src.closer = conn
	return src, nil
}
