package parser

import (
	"bufio"
	"html"
	"io"
	"regexp"
	"strings"

	"starsync-go-srv/internal/models"
)

// Line classes of the plist-style library export. Only three matter:
// bare section/record keys, key+value field lines, and dict boundaries.
var (
	keyOnlyRegex = regexp.MustCompile(`^<key>(.*)</key>$`)
	fieldRegex   = regexp.MustCompile(`^<key>(.*?)</key>\s*<(?:integer|string|date|real)>(.*)</(?:integer|string|date|real)>$`)
	boolRegex    = regexp.MustCompile(`^<key>(.*?)</key>\s*<(true|false)/>$`)
)

// Handler receives each completed record that carries a Rating field. A
// non-nil return stops the parse (used for client disconnects).
type Handler func(rec models.TrackRecord) error

type Stats struct {
	Tracks int // records closed inside the Tracks section
	Rated  int // records that carried a Rating and were handed off
}

// LibraryParser streams a library export line by line. It is single pass and
// holds at most one track's fields at a time; when Retain is non-nil, every
// record carrying a Track ID is additionally archived there by ID (bounded
// by total track count).
type LibraryParser struct {
	Retain map[string]models.TrackRecord
}

// Parse runs the state machine over the export. Sections other than
// "Tracks" are consumed and ignored; unrecognized lines are skipped
// silently. Field values are entity-decoded.
func (p *LibraryParser) Parse(r io.Reader, onRated Handler) (Stats, error) {
	const (
		stateOutside = iota
		stateInSection
		stateInTrack
	)

	var (
		stats   Stats
		state   = stateOutside
		section string
		depth   int
		fields  models.TrackRecord
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "<dict>", "<array>":
			depth++
			// Top-level dict is depth 1, a section container is depth 2,
			// so each track record opens at depth 3.
			if state == stateInSection && section == "Tracks" && depth == 3 {
				state = stateInTrack
				fields = models.TrackRecord{}
			}
			continue
		case "</dict>", "</array>":
			if state == stateInTrack {
				stats.Tracks++
				if p.Retain != nil {
					if id := fields.ID(); id != "" {
						p.Retain[id] = fields
					}
				}
				if _, ok := fields["Rating"]; ok {
					stats.Rated++
					if err := onRated(fields); err != nil {
						return stats, err
					}
				}
				fields = nil
				state = stateInSection
			}
			depth--
			if depth <= 1 && state == stateInSection {
				state = stateOutside
			}
			continue
		}

		switch state {
		case stateInTrack:
			if m := fieldRegex.FindStringSubmatch(line); m != nil {
				fields[html.UnescapeString(m[1])] = html.UnescapeString(m[2])
			} else if m := boolRegex.FindStringSubmatch(line); m != nil {
				fields[html.UnescapeString(m[1])] = m[2]
			}
			// Anything else inside a track is noise, not an error.
		default:
			// Bare keys at the top level name sections; deeper bare keys
			// (per-track ID keys, playlist keys) carry no state.
			if depth == 1 {
				if m := keyOnlyRegex.FindStringSubmatch(line); m != nil {
					section = m[1]
					state = stateInSection
				}
			}
		}
	}

	return stats, scanner.Err()
}
