package plasmite

import (
	"encoding/json"
	"fmt"

	"github.com/plasmite/plasmite/internal/fsutil"
)

// ValidationStatus summarizes a full-scan Report.
type ValidationStatus int

const (
	ValidationOK ValidationStatus = iota
	ValidationIssues
)

// Issue is one structured validator failure (§4.7).
type Issue struct {
	Code    string
	Message string

	HasSeq bool
	Seq    uint64

	HasOffset bool
	Offset    uint64
}

// HintWarning flags a sampled hint-table slot that no longer points at the
// frame it claims to (§4.7's staleness spot-check); these are warnings,
// never failures.
type HintWarning struct {
	SlotIndex uint64
	Message   string
}

// Report is the structured result of a full scan (§6.2).
type Report struct {
	Status ValidationStatus

	HasLastGoodSeq bool
	LastGoodSeq    uint64

	Issues []Issue
	Hints  []HintWarning

	// SnapshotPath is set when any Corrupt-class issue was found: a JSON
	// snapshot of this report plus the raw pool header is written next to
	// the pool file for postmortem (SPEC_FULL supplement).
	SnapshotPath string
}

func issue(code, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (i Issue) withSeq(seq uint64) Issue {
	i.HasSeq = true
	i.Seq = seq
	return i
}

func (i Issue) withOffset(off uint64) Issue {
	i.HasOffset = true
	i.Offset = off
	return i
}

// Validate performs a full scan from tail to head, following wrap markers,
// checking every invariant in §3.2/§4.7. It always returns a Report; Io is
// the only hard error (the snapshot write failing is reported as an issue,
// not a hard error, since the scan result itself is still meaningful).
func (p *Pool) Validate() (Report, error) {
	header, err := p.header()
	if err != nil {
		return Report{}, err
	}

	var report Report
	ring := p.ringBytes(header)

	if !header.isEmpty() {
		maxSteps := header.RingSize/frameHeaderSize + validatorMaxStepsExtra
		off := header.TailOff
		expectedSeq := header.OldestSeq
		var lastGood uint64
		haveLastGood := false

		steps := uint64(0)
		for {
			if steps > maxSteps {
				report.Issues = append(report.Issues, issue("scan_bound_exceeded", "scan exceeded %d steps without reaching head_off", maxSteps))
				break
			}
			steps++

			fh, derr := readFrameHeaderAt(ring, off)
			if derr != nil {
				report.Issues = append(report.Issues, issue("bad_frame_header", "%v", derr).withOffset(off))
				break
			}

			if fh.State == frameWrap {
				if header.HeadOff == 0 {
					// A wrap marker with nothing committed after it ends
					// the live run.
					break
				}
				off = 0
				continue
			}

			if fh.State != frameCommitted {
				report.Issues = append(report.Issues, issue("frame_not_committed", "state=%d", fh.State).withOffset(off))
				break
			}

			if verr := validateFrameHeader(fh, header.RingSize); verr != nil {
				report.Issues = append(report.Issues, issue("frame_invalid", "%v", verr).withOffset(off).withSeq(fh.Seq))
				break
			}

			if fh.Seq != expectedSeq {
				report.Issues = append(report.Issues, issue("seq_gap", "expected seq %d, found %d", expectedSeq, fh.Seq).withOffset(off).withSeq(fh.Seq))
				break
			}

			payloadStart := off + frameHeaderSize
			payloadEnd := payloadStart + uint64(fh.PayloadLen)
			markerEnd := payloadEnd + commitMarkerSize
			if markerEnd > uint64(len(ring)) {
				report.Issues = append(report.Issues, issue("frame_overflows_ring", "frame at %d extends past ring", off).withOffset(off).withSeq(fh.Seq))
				break
			}
			if string(ring[payloadEnd:markerEnd]) != commitMarker {
				report.Issues = append(report.Issues, issue("missing_commit_marker", "no commit marker after frame at %d", off).withOffset(off).withSeq(fh.Seq))
				break
			}

			lastGood = fh.Seq
			haveLastGood = true

			fl, lerr := frameLen(uint64(fh.PayloadLen))
			if lerr != nil {
				report.Issues = append(report.Issues, issue("frame_len_overflow", "%v", lerr).withOffset(off).withSeq(fh.Seq))
				break
			}
			next := off + fl
			if next == header.RingSize {
				next = 0
			}

			if next == header.HeadOff {
				// Clean finish: the walk reached head_off exactly after
				// the last live frame.
				break
			}

			expectedSeq++
			off = next
		}

		report.HasLastGoodSeq = haveLastGood
		report.LastGoodSeq = lastGood
	}

	if header.IndexCapacity > 0 {
		idx := p.indexBytes(header)
		for _, slot := range hintSampleIndices(header.IndexCapacity) {
			storedSeq, storedOff := hintRead(idx, slot)
			if storedSeq == 0 {
				continue
			}
			if !header.isEmpty() && storedSeq >= header.OldestSeq && storedSeq <= header.NewestSeq {
				if _, ok := tryReadFrameAt(ring, storedOff, storedSeq, header.RingSize); ok {
					continue
				}
			}
			report.Hints = append(report.Hints, HintWarning{
				SlotIndex: slot,
				Message:   fmt.Sprintf("slot %d claims seq %d at offset %d, which no longer resolves", slot, storedSeq, storedOff),
			})
		}
	}

	if len(report.Issues) == 0 {
		report.Status = ValidationOK
	} else {
		// Every Issue the scan above appends (bad_frame_header,
		// frame_not_committed, frame_invalid, seq_gap,
		// frame_overflows_ring, missing_commit_marker,
		// frame_len_overflow, scan_bound_exceeded) is Corrupt-class: a
		// structural violation the scan cannot recover from on its own.
		// HintWarnings are collected separately in report.Hints and never
		// trigger a snapshot. So "any issue" and "any Corrupt-class
		// issue" are the same condition here.
		report.Status = ValidationIssues
		if path, err := p.writeCorruptSnapshot(header, report); err == nil {
			report.SnapshotPath = path
		}
	}

	return report, nil
}

type corruptSnapshot struct {
	Report    Report
	Header    poolHeader
	RawHeader []byte // the pool header's bytes as they were in the mmap
}

// writeCorruptSnapshot persists the report and the raw header next to the
// pool file, atomically, for postmortem (SPEC_FULL supplement).
func (p *Pool) writeCorruptSnapshot(header poolHeader, report Report) (string, error) {
	path := fmt.Sprintf("%s.corrupt-%d.json", p.path, nowNs())

	raw := append([]byte(nil), p.data[:poolHeaderSize]...)
	data, err := json.MarshalIndent(corruptSnapshot{Report: report, Header: header, RawHeader: raw}, "", "  ")
	if err != nil {
		return "", err
	}

	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
