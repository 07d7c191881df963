package blockmeta

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// The header keys below are the recognized entry-level (unprefixed,
// non-addr) keys.
// Unrecognized keys are tolerated and treated as host transition lines
// rather than rejected, so older writers and newer readers stay compatible.
const (
	keyVolume   = "VOLUME"
	keyGBID     = "GBID"
	keyHA       = "HA"
	keySize     = "SIZE"
	keyPassword = "PASSWORD"
)

// parseLog performs a single linear, last-write-wins scan over a block's
// append-only metadata log, projecting it into a MetaInfo. It only reads
// the log; it never writes to it.
func parseLog(volume, block string, r io.Reader) (*MetaInfo, error) {
	m := &MetaInfo{Volume: volume, Block: block}
	order := make([]string, 0, 4)
	index := make(map[string]int, 4)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, val, ok := splitLine(line)
		if !ok {
			continue
		}

		switch key {
		case keyVolume:
			m.Volume = val
		case keyGBID:
			m.GBID = val
		case keyHA:
			if n, err := strconv.Atoi(val); err == nil {
				m.Mpath = n
			}
		case keySize:
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				m.Size = n
			}
		case keyPassword:
			m.Passwd = val
		case string(EntryCreate):
			m.EntryPhase, m.EntryOutcome = EntryCreate, EntryOutcome(val)
		case string(EntryDelete):
			m.EntryPhase, m.EntryOutcome = EntryDelete, EntryOutcome(val)
		default:
			// Anything else is a "<addr>: STATUS" host transition line.
			// Last occurrence wins; first occurrence fixes list order,
			// so a host appears at most once in the current-status
			// projection.
			if i, seen := index[key]; seen {
				order[i] = key
				m.List[i].Status = Status(val)
			} else {
				index[key] = len(order)
				order = append(order, key)
				m.List = append(m.List, HostEntry{Addr: key, Status: Status(val)})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// splitLine splits a "KEY: VALUE" line. Returns ok=false for malformed
// lines, which are silently skipped.
func splitLine(line string) (key, val string, ok bool) {
	i := strings.Index(line, ":")
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	val = strings.TrimSpace(line[i+1:])
	if key == "" {
		return "", "", false
	}
	return key, val, true
}
