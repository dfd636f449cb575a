package engine

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/ganjayant/lsmkv/core"
	"github.com/ganjayant/lsmkv/sstable"
	"github.com/ganjayant/lsmkv/sys"
)

// recoverSegments scans dir for segment index files left over from a
// previous run, opens a Handle for each, and returns them sorted oldest
// first (segment base names are fixed-width timestamp+sequence strings,
// so lexical sort is chronological), along with the highest sequence
// number seen so new segments never reuse one.
//
// It scans by index file rather than data file because Writer.Finish
// renames a segment's data file into place before writing its index, so
// a crash in that window can leave a .data file with no matching .index.
// A segment whose index fails to load is logged and discarded rather
// than failing recovery outright, since one unreadable leftover segment
// should not brick the whole engine on restart.
func recoverSegments(file sys.File, dir string, logger *slog.Logger) ([]*sstable.Handle, uint64, error) {
	entries, err := file.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}

	var bases []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, core.IndexFileSuffix) {
			bases = append(bases, strings.TrimSuffix(name, core.IndexFileSuffix))
		}
	}
	sort.Strings(bases)

	var maxSeq uint64
	handles := make([]*sstable.Handle, 0, len(bases))
	for _, base := range bases {
		h, err := sstable.OpenHandle(file, dir, base)
		if err != nil {
			logger.Warn("discarding segment with unreadable index", "segment", base, "error", err)
			continue
		}
		handles = append(handles, h)
		if seq := parseSeq(base); seq > maxSeq {
			maxSeq = seq
		}
	}
	return handles, maxSeq, nil
}

// parseSeq extracts the sequence suffix from a segment base name
// formatted by core.SegmentBaseName ("sstable_<millis>_<seq>"). Returns 0
// if base does not match the expected shape, which only happens for
// files this engine did not itself write.
func parseSeq(base string) uint64 {
	idx := strings.LastIndexByte(base, '_')
	if idx < 0 {
		return 0
	}
	var seq uint64
	for _, c := range base[idx+1:] {
		if c < '0' || c > '9' {
			return 0
		}
		seq = seq*10 + uint64(c-'0')
	}
	return seq
}

// parseMillis extracts the creation-timestamp field from a segment base
// name formatted by core.SegmentBaseName ("sstable_<millis>_<seq>").
// Returns 0 if base does not match the expected shape.
func parseMillis(base string) int64 {
	first := strings.IndexByte(base, '_')
	if first < 0 {
		return 0
	}
	last := strings.LastIndexByte(base, '_')
	if last <= first {
		return 0
	}
	var millis int64
	for _, c := range base[first+1 : last] {
		if c < '0' || c > '9' {
			return 0
		}
		millis = millis*10 + int64(c-'0')
	}
	return millis
}
