package dimse

import (
	"io"
	"net"

	"github.com/otcheredev/dicom-store-gateway/pkg/ulpdu"
)

// readPDU reads one full PDU from conn, blocking until the 6-byte header
// and its declared payload have both arrived (or an error/timeout occurs).
func readPDU(conn net.Conn) (ulpdu.PDU, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(conn, header); err != nil {
		return ulpdu.PDU{}, err
	}
	pduType, length, err := ulpdu.DecodeHeader(header)
	if err != nil {
		return ulpdu.PDU{}, err
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(conn, payload); err != nil {
			return ulpdu.PDU{}, err
		}
	}
	return ulpdu.Decode(pduType, payload)
}

// writePDU writes the fully-encoded PDU bytes in a single Write call so
// the header and payload land atomically on the wire.
func writePDU(conn net.Conn, encoded []byte) error {
	_, err := conn.Write(encoded)
	return err
}
