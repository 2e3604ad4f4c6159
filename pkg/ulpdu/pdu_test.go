package ulpdu

import "testing"

func TestPDUEncodeDecodeHeader(t *testing.T) {
	tests := []struct {
		name string
		pdu  PDU
	}{
		{"Associate-RQ", PDU{Type: TypeAssociateRQ, Data: []byte{1, 2, 3}}},
		{"P-DATA-TF", PDU{Type: TypePDataTF, Data: make([]byte, 64)}},
		{"empty payload", PDU{Type: TypeReleaseRQ, Data: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.pdu.Encode()
			pduType, length, err := DecodeHeader(encoded[:6])
			if err != nil {
				t.Fatalf("DecodeHeader: %v", err)
			}
			if pduType != tt.pdu.Type {
				t.Errorf("type = 0x%02x, want 0x%02x", pduType, tt.pdu.Type)
			}
			if int(length) != len(tt.pdu.Data) {
				t.Errorf("length = %d, want %d", length, len(tt.pdu.Data))
			}
			decoded, err := Decode(pduType, encoded[6:6+length])
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(decoded.Data) != len(tt.pdu.Data) {
				t.Errorf("decoded data length = %d, want %d", len(decoded.Data), len(tt.pdu.Data))
			}
		})
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short header")
	}
}

func TestDecodeHeaderOverSized(t *testing.T) {
	header := []byte{TypeAssociateRQ, 0, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, _, err := DecodeHeader(header); err == nil {
		t.Error("expected error for oversized pdu length")
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode(0xAA, []byte{}); err == nil {
		t.Error("expected error for unknown pdu type")
	}
}
