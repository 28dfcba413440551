// Package wal provides write-ahead logging for durability and crash recovery.
//
// Every mutation is appended as a CRC-framed record before it is applied to
// the in-memory store, so a crash can lose at most the operations that were
// not yet durable under the configured DurabilityMode. Replay tolerates a
// torn record at the tail: the log is cut at the first record that fails
// its checksum, and later appends continue from the valid prefix.
//
// Features:
//   - Single-file log with a self-describing header
//   - Optional per-record zstd or lz4 block compression
//   - Configurable fsync behavior (async, group commit, sync)
//   - Checkpoint support for log truncation after snapshots
//   - Sequential ordering via sequence numbers
package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// FileName is the WAL file name inside the WAL directory.
const FileName = "vecstore.wal"

// ErrClosed is returned when operations are attempted on a closed WAL.
var ErrClosed = errors.New("wal is closed")

// WAL provides write-ahead logging for durability.
type WAL struct {
	mu        sync.Mutex
	file      *os.File
	writer    io.Writer
	bufWriter *bufio.Writer

	// Block compression codecs, nil unless the log uses zstd. LZ4
	// block functions are stateless and need no instances.
	zenc *zstd.Encoder
	zdec *zstd.Decoder

	seqNum           uint64
	filePath         string
	compression      Compression
	compressionLevel int
	dataOffset       int64 // Start of the record stream, after the header
	replayOffset     int64 // Start of the un-checkpointed suffix

	// Auto-checkpoint tracking
	autoCheckpointOps int
	autoCheckpointMB  int
	committedOps      int
	checkpointFunc    func() error

	// Group commit support
	durabilityMode      DurabilityMode
	groupCommitInterval time.Duration
	groupCommitMaxOps   int
	groupCommitTicker   *time.Ticker
	groupCommitStopCh   chan struct{}
	groupCommitPending  int
	groupCommitWg       sync.WaitGroup

	syncCond        *sync.Cond
	persistedSeqNum uint64 // Highest sequence number fsynced to disk
}

// New opens or creates a WAL in the configured directory.
//
// An existing log keeps the compression settings recorded in its header,
// regardless of the options passed here. The log is scanned to restore
// the next sequence number, and a torn record at the tail is truncated
// away so that later appends stay replayable.
func New(optFns ...func(o *Options)) (*WAL, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(opts.Dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	filePath := filepath.Join(opts.Dir, FileName)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0600) //nolint:gosec // G304: Path is configurable
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat WAL file: %w", err)
	}

	w := &WAL{
		file:                file,
		filePath:            filePath,
		compressionLevel:    opts.CompressionLevel,
		autoCheckpointOps:   opts.AutoCheckpointOps,
		autoCheckpointMB:    opts.AutoCheckpointMB,
		durabilityMode:      opts.DurabilityMode,
		groupCommitInterval: opts.GroupCommitInterval,
		groupCommitMaxOps:   opts.GroupCommitMaxOps,
	}
	w.syncCond = sync.NewCond(&w.mu)

	if err := w.initializeFile(st, opts); err != nil {
		_ = file.Close()
		return nil, err
	}

	if err := w.initCodecs(); err != nil {
		_ = file.Close()
		return nil, err
	}

	// Restore the sequence counter and drop any torn tail before the
	// write side is attached.
	if err := w.scanLog(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to scan WAL: %w", err)
	}

	w.setupWriter()

	if w.durabilityMode == DurabilityGroupCommit && w.groupCommitInterval > 0 {
		w.groupCommitStopCh = make(chan struct{})
		w.groupCommitTicker = time.NewTicker(w.groupCommitInterval)
		w.groupCommitWg.Add(1)
		go w.groupCommitWorker()
	}

	return w, nil
}

// FilePath returns the path to the WAL file.
func (w *WAL) FilePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filePath
}

// initializeFile writes a fresh header or validates the existing one.
func (w *WAL) initializeFile(info os.FileInfo, opts Options) error {
	if info.Size() == 0 {
		hdrLen, err := writeWALHeader(w.file, walHeaderInfo{
			Compression:      opts.Compression,
			CompressionLevel: opts.CompressionLevel,
		})
		if err != nil {
			return err
		}
		w.dataOffset = hdrLen
		w.compression = opts.Compression
		return nil
	}

	hdrInfo, valid, err := readWALHeader(w.file)
	if err != nil {
		return fmt.Errorf("failed to read WAL header: %w", err)
	}
	if !valid {
		return fmt.Errorf("invalid WAL header")
	}
	w.dataOffset = hdrInfo.HeaderLen
	w.compression = hdrInfo.Compression
	w.compressionLevel = hdrInfo.CompressionLevel
	return nil
}

// initCodecs creates the zstd encoder and decoder used for per-record
// block compression. Both are safe for use under w.mu.
func (w *WAL) initCodecs() error {
	if w.compression != CompressionZstd {
		return nil
	}

	level := zstd.EncoderLevelFromZstd(w.compressionLevel)
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	w.zenc = zenc
	w.zdec = zdec
	return nil
}

// setupWriter attaches the buffered write side. The file offset must be
// at the append position.
func (w *WAL) setupWriter() {
	w.bufWriter = bufio.NewWriter(w.file)
	w.writer = w.bufWriter
}

// scanLog finds the highest sequence number and truncates a torn record
// at the tail. Record framing is independent of compression, so the
// valid prefix is located by byte offset in every mode.
//
// A checkpoint marker can survive in the file when a crash hits between
// the marker fsync and the truncation. Replay must then start after the
// last marker, or entries appended on the next run would be skipped.
func (w *WAL) scanLog() error {
	if _, err := w.file.Seek(w.dataOffset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(w.file)

	var (
		maxSeqNum uint64
		validEnd  = w.dataOffset
		lastCPEnd = w.dataOffset
		torn      bool
	)

	for {
		var entry Entry
		n, err := w.decodeEntry(reader, &entry)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if endOfLog(err) {
				torn = true
				break
			}
			return err
		}
		validEnd += n
		if entry.Op == OpCheckpoint {
			lastCPEnd = validEnd
		}
		if entry.SeqNum > maxSeqNum {
			maxSeqNum = entry.SeqNum
		}
	}

	w.seqNum = maxSeqNum
	w.persistedSeqNum = maxSeqNum
	w.replayOffset = lastCPEnd

	if torn {
		if err := w.file.Truncate(validEnd); err != nil {
			return fmt.Errorf("failed to truncate torn WAL tail: %w", err)
		}
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	return nil
}

// Append assigns the next sequence number to entry and writes it to the
// log. The call returns once the entry is durable under the configured
// DurabilityMode.
func (w *WAL) Append(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	w.seqNum++
	entry.SeqNum = w.seqNum
	if err := w.encodeEntry(&entry); err != nil {
		return fmt.Errorf("failed to encode WAL entry: %w", err)
	}
	if err := w.flushLocked(); err != nil {
		return err
	}

	w.committedOps++
	if err := w.syncIfNeeded(); err != nil {
		return err
	}
	return w.maybeCheckpointLocked()
}

// AppendBatch writes multiple entries and fsyncs at most once. Sequence
// numbers are assigned in order.
func (w *WAL) AppendBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	for i := range entries {
		w.seqNum++
		entries[i].SeqNum = w.seqNum
		if err := w.encodeEntry(&entries[i]); err != nil {
			return fmt.Errorf("failed to encode WAL entry %d: %w", i, err)
		}
	}
	if err := w.flushLocked(); err != nil {
		return err
	}

	w.committedOps += len(entries)
	if err := w.syncIfNeeded(); err != nil {
		return err
	}
	return w.maybeCheckpointLocked()
}

func (w *WAL) flushLocked() error {
	if err := w.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return nil
}

// syncIfNeeded performs fsync based on the configured durability mode.
// Caller must hold w.mu.
func (w *WAL) syncIfNeeded() error {
	switch w.durabilityMode {
	case DurabilityAsync:
		return nil

	case DurabilitySync:
		if err := w.file.Sync(); err != nil {
			return err
		}
		w.persistedSeqNum = w.seqNum
		return nil

	case DurabilityGroupCommit:
		w.groupCommitPending++
		targetSeq := w.seqNum

		if w.groupCommitPending >= w.groupCommitMaxOps {
			return w.doGroupCommit()
		}

		// Without a background worker there is nothing to wait for.
		if w.groupCommitStopCh == nil {
			return w.doGroupCommit()
		}

		// Wait for the background worker (or another writer) to sync.
		// Wait releases w.mu while blocked.
		for w.persistedSeqNum < targetSeq && w.file != nil {
			w.syncCond.Wait()
		}
		if w.file == nil {
			return ErrClosed
		}
		return nil

	default:
		return nil
	}
}

// doGroupCommit performs the actual fsync and wakes waiting writers.
// Caller must hold w.mu.
func (w *WAL) doGroupCommit() error {
	if w.groupCommitPending == 0 {
		return nil
	}

	if err := w.file.Sync(); err != nil {
		return err
	}

	w.groupCommitPending = 0
	w.persistedSeqNum = w.seqNum
	w.syncCond.Broadcast()
	return nil
}

// groupCommitWorker performs periodic fsync in GroupCommit mode.
func (w *WAL) groupCommitWorker() {
	defer w.groupCommitWg.Done()

	for {
		select {
		case <-w.groupCommitStopCh:
			// Final fsync before shutdown
			w.mu.Lock()
			if w.file != nil {
				_ = w.doGroupCommit()
			}
			w.mu.Unlock()
			return

		case <-w.groupCommitTicker.C:
			w.mu.Lock()
			if w.file != nil {
				_ = w.doGroupCommit()
			}
			w.mu.Unlock()
		}
	}
}

// Checkpoint writes a checkpoint marker and truncates the WAL.
// Call after the in-memory state has been durably snapshotted.
func (w *WAL) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	w.seqNum++
	entry := Entry{Op: OpCheckpoint, SeqNum: w.seqNum}
	if err := w.encodeEntry(&entry); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := w.flushLocked(); err != nil {
		return err
	}

	// Checkpoint is an explicit durability boundary.
	if err := w.file.Sync(); err != nil {
		return err
	}

	return w.truncate()
}

// truncate resets the WAL to an empty log. Caller must hold w.mu.
func (w *WAL) truncate() error {
	if err := w.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return err
	}

	file, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to truncate WAL file: %w", err)
	}
	w.file = file

	hdrLen, err := writeWALHeader(w.file, walHeaderInfo{
		Compression:      w.compression,
		CompressionLevel: w.compressionLevel,
	})
	if err != nil {
		_ = w.file.Close()
		w.file = nil
		return err
	}
	w.dataOffset = hdrLen
	w.replayOffset = hdrLen

	w.setupWriter()

	w.seqNum = 0
	w.persistedSeqNum = 0
	w.committedOps = 0
	w.groupCommitPending = 0
	w.syncCond.Broadcast()

	return nil
}

// Replay calls the callback for every valid entry in the log, in append
// order, stopping at a checkpoint marker or at the first torn record.
func (w *WAL) Replay(callback func(entry Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	if _, err := w.file.Seek(w.replayOffset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(w.file)

	for {
		var entry Entry
		if _, err := w.decodeEntry(reader, &entry); err != nil {
			if endOfLog(err) {
				break
			}
			return fmt.Errorf("WAL corrupted at entry: %w", err)
		}

		if entry.Op == OpCheckpoint {
			break
		}

		if err := callback(entry); err != nil {
			return fmt.Errorf("failed to replay entry %d: %w", entry.SeqNum, err)
		}
	}

	// Back to the end for appending
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	return nil
}

// Len returns the number of entries in the WAL. Intended for tests.
func (w *WAL) Len() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, ErrClosed
	}

	if _, err := w.file.Seek(w.replayOffset, io.SeekStart); err != nil {
		return 0, err
	}

	reader := bufio.NewReader(w.file)

	count := 0
	for {
		var entry Entry
		if _, err := w.decodeEntry(reader, &entry); err != nil {
			break
		}
		if entry.Op == OpCheckpoint {
			break
		}
		count++
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return count, err
	}

	return count, nil
}

// Close flushes pending entries and closes the WAL file.
//
// In GroupCommit mode the background worker is stopped first and a final
// fsync is performed, so no acknowledged entry is lost. After Close
// returns, the WAL is no longer usable.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	if w.groupCommitTicker != nil {
		close(w.groupCommitStopCh)
		w.mu.Unlock()
		w.groupCommitWg.Wait()
		w.mu.Lock()
		w.groupCommitTicker.Stop()
		w.groupCommitTicker = nil
		w.groupCommitStopCh = nil
	}

	if err := w.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}
	if w.zdec != nil {
		w.zdec.Close()
	}

	err := w.file.Close()
	w.file = nil
	w.syncCond.Broadcast()
	return err
}

// SetCheckpointCallback sets the function invoked when an auto-checkpoint
// threshold is reached. The callback typically snapshots the store and
// then calls Checkpoint.
func (w *WAL) SetCheckpointCallback(fn func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkpointFunc = fn
}

// maybeCheckpointLocked triggers the checkpoint callback when a threshold
// is exceeded. Caller must hold w.mu.
func (w *WAL) maybeCheckpointLocked() error {
	if w.checkpointFunc == nil {
		return nil
	}

	trigger := false
	if w.autoCheckpointOps > 0 && w.committedOps >= w.autoCheckpointOps {
		trigger = true
	} else if w.autoCheckpointMB > 0 {
		if stat, err := w.file.Stat(); err == nil {
			if stat.Size() >= int64(w.autoCheckpointMB)*1024*1024 {
				trigger = true
			}
		}
	}
	if !trigger {
		return nil
	}

	w.committedOps = 0

	// Release the lock: the callback snapshots the store and calls back
	// into Checkpoint.
	w.mu.Unlock()
	err := w.checkpointFunc()
	w.mu.Lock()

	return err
}
