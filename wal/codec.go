package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"unsafe"

	"github.com/pierrec/lz4/v4"
)

var (
	ErrInvalidCRC     = errors.New("invalid WAL record checksum")
	ErrInvalidType    = errors.New("invalid WAL record type")
	ErrShortRead      = errors.New("short read in WAL record")
	ErrRecordTooLarge = errors.New("WAL record too large")
)

// Record format:
// [CRC32: 4] [Op: 1] [SeqNum: 8] [Flags: 1] [Length: 4] [Payload: Length bytes]
// The CRC covers Op, SeqNum, Flags, Length and Payload, so a torn write at
// the tail is always detected regardless of compression.
//
// Flags bit 0 marks a block-compressed payload (algorithm from the file
// header): [RawLen: 4] [compressed bytes]. Records whose payload does not
// shrink are stored raw, flag clear.
//
// Raw payload for Add/Update: [ID: 8] [VecLen: 4] [Vector: VecLen*4] [DataLen: 4] [Data: DataLen]
// Raw payload for Delete: [ID: 8]
// Raw payload for Checkpoint: empty
const (
	recordHeaderLen = 4 + 1 + 8 + 1 + 4

	recordFlagCompressed = 1

	// compressMinLen skips compression for payloads too small to shrink.
	compressMinLen = 64

	// maxRecordLen bounds a single record payload. Guards replay
	// against reading a corrupted length as an allocation size.
	maxRecordLen = 100 * 1024 * 1024
)

func encodePayload(entry *Entry) ([]byte, error) {
	switch entry.Op {
	case OpAdd, OpUpdate:
		payload := make([]byte, 0, 8+4+len(entry.Vector)*4+4+len(entry.Data))
		payload = binary.LittleEndian.AppendUint64(payload, entry.ID)
		payload = binary.LittleEndian.AppendUint32(payload, uint32(len(entry.Vector)))
		if len(entry.Vector) > 0 {
			vecBytes := unsafe.Slice((*byte)(unsafe.Pointer(&entry.Vector[0])), len(entry.Vector)*4)
			payload = append(payload, vecBytes...)
		}
		payload = binary.LittleEndian.AppendUint32(payload, uint32(len(entry.Data)))
		payload = append(payload, entry.Data...)
		return payload, nil
	case OpDelete:
		return binary.LittleEndian.AppendUint64(nil, entry.ID), nil
	case OpCheckpoint:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, entry.Op)
	}
}

// compressPayload block-compresses raw and reports whether compression
// paid off. Incompressible payloads are returned unchanged, matching the
// stored-uncompressed fallback of the segment block format.
func (w *WAL) compressPayload(raw []byte) ([]byte, bool) {
	if w.compression == CompressionNone || len(raw) < compressMinLen {
		return raw, false
	}

	var compressed []byte

	switch w.compression {
	case CompressionZstd:
		buf := make([]byte, 4, 4+len(raw))
		binary.LittleEndian.PutUint32(buf, uint32(len(raw)))
		compressed = w.zenc.EncodeAll(raw, buf)
	case CompressionLZ4:
		buf := make([]byte, 4+lz4.CompressBlockBound(len(raw)))
		binary.LittleEndian.PutUint32(buf, uint32(len(raw)))
		n, err := lz4.CompressBlock(raw, buf[4:], nil)
		if err != nil || n == 0 {
			return raw, false
		}
		compressed = buf[:4+n]
	default:
		return raw, false
	}

	if float64(len(compressed)) > float64(len(raw))*0.9 {
		return raw, false
	}
	return compressed, true
}

// decompressPayload reverses compressPayload.
func (w *WAL) decompressPayload(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, ErrShortRead
	}
	rawLen := binary.LittleEndian.Uint32(payload)
	if rawLen > maxRecordLen {
		return nil, fmt.Errorf("WAL record raw length %d exceeds limit", rawLen)
	}

	switch w.compression {
	case CompressionZstd:
		raw, err := w.zdec.DecodeAll(payload[4:], make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress WAL record: %w", err)
		}
		if uint32(len(raw)) != rawLen {
			return nil, fmt.Errorf("WAL record decompressed to %d bytes, want %d", len(raw), rawLen)
		}
		return raw, nil
	case CompressionLZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload[4:], raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress WAL record: %w", err)
		}
		if uint32(n) != rawLen {
			return nil, fmt.Errorf("WAL record decompressed to %d bytes, want %d", n, rawLen)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("compressed WAL record in uncompressed log")
	}
}

// encodeEntry writes a framed record for entry to w.writer.
func (w *WAL) encodeEntry(entry *Entry) error {
	raw, err := encodePayload(entry)
	if err != nil {
		return err
	}

	payload, compressed := w.compressPayload(raw)
	if len(payload) > maxRecordLen {
		return ErrRecordTooLarge
	}

	var header [recordHeaderLen]byte
	header[4] = byte(entry.Op)
	binary.LittleEndian.PutUint64(header[5:13], entry.SeqNum)
	if compressed {
		header[13] = recordFlagCompressed
	}
	binary.LittleEndian.PutUint32(header[14:18], uint32(len(payload)))

	crc := crc32.NewIEEE()
	_, _ = crc.Write(header[4:])
	_, _ = crc.Write(payload)
	binary.LittleEndian.PutUint32(header[0:4], crc.Sum32())

	if _, err := w.writer.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(payload); err != nil {
		return err
	}
	return nil
}

// decodeEntry reads one framed record from r. It returns the record's
// total encoded size so callers can track the valid prefix of the log.
func (w *WAL) decodeEntry(r io.Reader, entry *Entry) (int64, error) {
	var header [recordHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, err
	}

	checksum := binary.LittleEndian.Uint32(header[0:4])
	op := OperationType(header[4])
	seqNum := binary.LittleEndian.Uint64(header[5:13])
	flags := header[13]
	length := binary.LittleEndian.Uint32(header[14:18])

	if length > maxRecordLen {
		return 0, ErrRecordTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}

	crc := crc32.NewIEEE()
	_, _ = crc.Write(header[4:])
	_, _ = crc.Write(payload)
	if crc.Sum32() != checksum {
		return 0, ErrInvalidCRC
	}

	size := int64(recordHeaderLen) + int64(length)

	if flags&recordFlagCompressed != 0 {
		raw, err := w.decompressPayload(payload)
		if err != nil {
			return size, err
		}
		payload = raw
	}

	entry.Op = op
	entry.SeqNum = seqNum
	entry.ID = 0
	entry.Vector = nil
	entry.Data = nil

	switch op {
	case OpAdd, OpUpdate:
		if err := parseVectorPayload(payload, entry); err != nil {
			return size, err
		}
	case OpDelete:
		if len(payload) < 8 {
			return size, ErrShortRead
		}
		entry.ID = binary.LittleEndian.Uint64(payload)
	case OpCheckpoint:
		// No payload
	default:
		return size, fmt.Errorf("%w: %d", ErrInvalidType, op)
	}

	return size, nil
}

func parseVectorPayload(payload []byte, entry *Entry) error {
	if len(payload) < 12 {
		return ErrShortRead
	}
	entry.ID = binary.LittleEndian.Uint64(payload)
	vecLen := binary.LittleEndian.Uint32(payload[8:12])
	offset := 12

	if vecLen > maxRecordLen/4 || len(payload) < offset+int(vecLen)*4 {
		return ErrShortRead
	}
	if vecLen > 0 {
		entry.Vector = make([]float32, vecLen)
		vecBytes := unsafe.Slice((*byte)(unsafe.Pointer(&entry.Vector[0])), int(vecLen)*4)
		copy(vecBytes, payload[offset:])
	}
	offset += int(vecLen) * 4

	if len(payload) < offset+4 {
		return ErrShortRead
	}
	dataLen := binary.LittleEndian.Uint32(payload[offset:])
	offset += 4

	if len(payload) < offset+int(dataLen) {
		return ErrShortRead
	}
	if dataLen > 0 {
		entry.Data = make([]byte, dataLen)
		copy(entry.Data, payload[offset:])
	}

	return nil
}

// endOfLog reports whether a decode failure marks the end of the valid
// log rather than an internal error. A crash mid-append leaves a torn
// record at the tail: a short read, a checksum mismatch, or garbage that
// parses as an oversized length field.
func endOfLog(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, ErrInvalidCRC) ||
		errors.Is(err, ErrRecordTooLarge)
}
