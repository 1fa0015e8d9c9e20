// Package cfgstore implements the Persistent Configuration Store
// (spec.md §4.4): an in-memory mirror of the live ConfigRecord, backed by
// a wear-levelled sequential log in flash. Reads are served from the
// mirror; writes update the mirror synchronously and enqueue a flash
// append that is best-effort and eventually consistent (spec.md §4.5:
// "the engine acknowledges only after the in-memory mirror is updated;
// the flash append is best-effort and eventually consistent").
//
// The ping-pong log layout and the retained-publish-on-boot shape are
// grounded on the services/config package (config.go,
// defaultconfigs.go), which parses an embedded tinyjson blob and
// publishes it retained at startup; here that embedded blob becomes the
// factory-default fallback used when the flash log is unreadable.
package cfgstore

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/crc16"
	"supervisor-fw/internal/flash"
	"supervisor-fw/internal/syslog"
	"supervisor-fw/types"
)

// recordHeaderSize is the (key_tag, length) prefix ahead of the payload
// and the trailing crc16 (spec.md §4.4 format).
const recordHeaderSize = 2
const recordTrailerSize = 2
const halfHeaderSize = 4 // generation counter, LE

var configTopic = bus.T("config", "record")

// Store is the flash-backed config store. It owns no goroutine of its
// own beyond Run, which drains queued flash appends; Get/Set are safe to
// call from any task.
type Store struct {
	conn  *bus.Connection
	owner *flash.Owner

	mu  sync.Mutex
	rec types.ConfigRecord

	base     uint32 // flash.ConfigLogOffset
	halfSize uint32 // flash.ConfigLogSize / 2
	active   int    // 0 or 1
	writeOff uint32 // next free offset within the active half, relative to its start

	appendQ chan appendJob

	rejectedWrites uint32
	compactions    uint32
	eraseCycles    uint32
}

type appendJob struct {
	key     types.ConfigKey
	payload []byte
}

// NewStore loads the store from flash (or factory defaults on total
// corruption) and returns a Store ready to serve Get/Set.
func NewStore(conn *bus.Connection, owner *flash.Owner) *Store {
	s := &Store{
		conn:     conn,
		owner:    owner,
		base:     flash.ConfigLogOffset,
		halfSize: flash.ConfigLogSize / 2,
		appendQ:  make(chan appendJob, 32),
	}
	s.load()
	return s
}

// Run drains queued flash appends in the background for as long as ctx is
// live, matching the engine's "acknowledge now, persist eventually"
// concurrency boundary (spec.md §4.5).
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.appendQ:
			s.persist(job)
		}
	}
}

// Get returns a copy of the live config record.
func (s *Store) Get() types.ConfigRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// Set validates value against the record's invariants, updates the
// in-memory mirror immediately, publishes the new record retained, and
// enqueues a flash append. A rejected write (failing Validate) is
// counted and dropped without touching the mirror (spec.md §8: "a bus
// write that would violate this is rejected").
func (s *Store) Set(key types.ConfigKey, payload []byte) bool {
	s.mu.Lock()
	candidate := s.rec
	if !applyField(key, payload, &candidate) {
		s.mu.Unlock()
		s.rejectedWrites++
		return false
	}
	if !candidate.Validate() {
		s.mu.Unlock()
		s.rejectedWrites++
		return false
	}
	s.rec = candidate
	rec := s.rec
	s.mu.Unlock()

	s.conn.Publish(s.conn.NewMessage(configTopic, rec, true))

	job := appendJob{key: key, payload: payload}
	select {
	case s.appendQ <- job:
	default:
		// queue full: mirror already reflects the write, the log entry
		// is simply deferred to the next successful flush.
	}
	return true
}

// RejectedWrites reports the count of writes rejected by Validate or by
// an unknown/malformed key, for diagnostics; no bus register reads it.
func (s *Store) RejectedWrites() uint32 { return s.rejectedWrites }

// Compactions and EraseCycles report wear-levelling activity for
// telemetry (SPEC_FULL.md supplemented feature: compaction/erase-cycle
// counters).
func (s *Store) Compactions() uint32 { return s.compactions }
func (s *Store) EraseCycles() uint32 { return s.eraseCycles }

// load scans both halves of the log region, picks the half with the
// higher valid generation counter as active, replays its records into
// rec, and falls back to factory defaults plus a full erase if neither
// half holds a valid generation (spec.md §4.4: "On total corruption,
// defaults are used and the log is erased").
func (s *Store) load() {
	dev, err := s.owner.TryAcquire()
	if err != nil {
		s.rec = defaultConfig()
		return
	}
	defer s.owner.Release()

	genA, okA := readGeneration(dev, s.base)
	genB, okB := readGeneration(dev, s.base+s.halfSize)

	switch {
	case okA && (!okB || genA >= genB):
		s.active = 0
	case okB:
		s.active = 1
	default:
		s.rec = defaultConfig()
		s.eraseLog(dev)
		return
	}

	rec := defaultConfig()
	off := uint32(halfHeaderSize)
	halfBase := s.base + uint32(s.active)*s.halfSize
	for {
		hdr := make([]byte, recordHeaderSize)
		if off+recordHeaderSize > s.halfSize {
			break
		}
		if err := dev.ReadAt(halfBase+off, hdr); err != nil {
			break
		}
		keyTag, length := hdr[0], hdr[1]
		if keyTag == 0xFF && length == 0xFF {
			break // unwritten tail
		}
		total := recordHeaderSize + uint32(length) + recordTrailerSize
		if off+total > s.halfSize {
			break
		}
		body := make([]byte, int(length)+recordTrailerSize)
		if err := dev.ReadAt(halfBase+off+recordHeaderSize, body); err != nil {
			break
		}
		payload := body[:length]
		wantCRC := binary.BigEndian.Uint16(body[length:])
		gotCRC := crc16.Checksum(append(hdr, payload...))
		if gotCRC != wantCRC {
			break // corrupt record: scan stops, uncommitted suffix ignored
		}
		applyField(types.ConfigKey(keyTag), payload, &rec)
		off += total
	}
	s.rec = rec
	s.writeOff = off
}

func readGeneration(dev flash.Device, halfStart uint32) (uint32, bool) {
	hdr := make([]byte, halfHeaderSize)
	if err := dev.ReadAt(halfStart, hdr); err != nil {
		return 0, false
	}
	gen := binary.LittleEndian.Uint32(hdr)
	if gen == 0xFFFFFFFF {
		return 0, false
	}
	return gen, true
}

// persist appends one record to the active half, compacting first if the
// record would not leave at least one erase-block of free space.
func (s *Store) persist(job appendJob) {
	dev, err := s.owner.TryAcquire()
	if err != nil {
		// DFU pipeline holds the controller; retry on the next tick by
		// re-enqueuing, best-effort per spec.md §4.5.
		go func() {
			time.Sleep(5 * time.Millisecond)
			select {
			case s.appendQ <- job:
			default:
			}
		}()
		return
	}
	defer s.owner.Release()

	recordLen := recordHeaderSize + len(job.payload) + recordTrailerSize
	if s.halfSize-s.writeOff < uint32(recordLen)+flash.EraseBlockSize {
		s.compact(dev)
	}

	hdr := []byte{byte(job.key), byte(len(job.payload))}
	crc := crc16.Checksum(append(append([]byte{}, hdr...), job.payload...))
	rec := make([]byte, 0, recordLen)
	rec = append(rec, hdr...)
	rec = append(rec, job.payload...)
	rec = append(rec, byte(crc>>8), byte(crc))

	halfBase := s.base + uint32(s.active)*s.halfSize
	if err := dev.ProgramAt(halfBase+s.writeOff, rec); err != nil {
		syslog.Default.Println("cfgstore: program failed")
		return
	}
	s.writeOff += uint32(recordLen)
}

// compact writes the live key set to the other half at a bumped
// generation, erases the old half, and switches the active half
// (spec.md §4.4 ping-pong layout).
func (s *Store) compact(dev flash.Device) {
	other := 1 - s.active
	otherBase := s.base + uint32(other)*s.halfSize
	if err := dev.EraseRange(otherBase, s.halfSize); err != nil {
		syslog.Default.Println("cfgstore: compaction erase failed")
		return
	}
	s.eraseCycles++

	curGen, _ := readGeneration(dev, s.base+uint32(s.active)*s.halfSize)
	newGen := curGen + 1
	genBytes := make([]byte, halfHeaderSize)
	binary.LittleEndian.PutUint32(genBytes, newGen)
	if err := dev.ProgramAt(otherBase, genBytes); err != nil {
		return
	}

	off := uint32(halfHeaderSize)
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	for _, key := range allKeys {
		payload := encodeField(key, rec)
		if payload == nil {
			continue
		}
		hdr := []byte{byte(key), byte(len(payload))}
		crc := crc16.Checksum(append(append([]byte{}, hdr...), payload...))
		entry := append(append(hdr, payload...), byte(crc>>8), byte(crc))
		if err := dev.ProgramAt(otherBase+off, entry); err != nil {
			return
		}
		off += uint32(len(entry))
	}

	oldBase := s.base + uint32(s.active)*s.halfSize
	_ = dev.EraseRange(oldBase, s.halfSize) // old half reclaimed for next compaction
	s.eraseCycles++

	s.active = other
	s.writeOff = off
	s.compactions++
}

func (s *Store) eraseLog(dev flash.Device) {
	_ = dev.EraseRange(s.base, flash.ConfigLogSize)
	s.eraseCycles++
	genBytes := make([]byte, halfHeaderSize)
	binary.LittleEndian.PutUint32(genBytes, 1)
	_ = dev.ProgramAt(s.base, genBytes)
	s.active = 0
	s.writeOff = halfHeaderSize
}

var allKeys = []types.ConfigKey{
	types.KeyVinCorrectionScale,
	types.KeyVscapCorrectionScale,
	types.KeyIinCorrectionScale,
	types.KeyPowerOnVscapCV,
	types.KeyPowerOffVscapCV,
	types.KeyVinThresholdCV,
	types.KeyWatchdogTimeoutMS,
	types.KeySoloDepletingTimeoutMS,
	types.KeyLEDBrightness,
	types.KeyAutoRestart,
}
