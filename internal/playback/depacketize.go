package playback

// H264 NAL unit types the render target cares about.
const (
	naluIDR   = 5
	naluSPS   = 7
	naluPPS   = 8
	naluSTAPA = 24
	naluFUA   = 28
)

// H264Depacketizer extracts NAL units from RTP H264 payloads.
// It keeps per-instance FU-A reassembly state, so one instance serves one track.
type H264Depacketizer struct {
	fuaBuf  []byte
	lastSeq uint16
	haveSeq bool
}

// NewH264Depacketizer creates a depacketizer with its own reassembly buffer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize extracts NAL units from an RTP H264 payload carried by the
// packet with sequence number seq. Single NAL, STAP-A and FU-A are handled.
// A sequence gap inside a fragmented unit drops the partial unit.
func (d *H264Depacketizer) Depacketize(seq uint16, payload []byte) [][]byte {
	gap := d.haveSeq && seq != d.lastSeq+1
	d.lastSeq = seq
	d.haveSeq = true

	if len(payload) < 1 {
		return nil
	}

	naluType := payload[0] & 0x1f

	switch {
	case naluType >= 1 && naluType <= 23:
		d.fuaBuf = nil
		return [][]byte{payload}

	case naluType == naluSTAPA:
		d.fuaBuf = nil
		return depacketizeSTAPA(payload)

	case naluType == naluFUA:
		return d.depacketizeFUA(payload, gap)

	default:
		return nil
	}
}

func depacketizeSTAPA(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 1 // STAP-A header byte

	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if size == 0 || offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

func (d *H264Depacketizer) depacketizeFUA(payload []byte, gap bool) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	fnri := payload[0] & 0xe0
	fuHeader := payload[1]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x1f

	switch {
	case start:
		d.fuaBuf = append([]byte{fnri | naluType}, payload[2:]...)
	case d.fuaBuf == nil:
		// continuation without a start, or the chain was already dropped
		return nil
	case gap:
		d.fuaBuf = nil
		return nil
	default:
		d.fuaBuf = append(d.fuaBuf, payload[2:]...)
	}

	if end {
		nalu := d.fuaBuf
		d.fuaBuf = nil
		return [][]byte{nalu}
	}
	return nil
}
