package parser

import (
	"errors"
	"strings"
	"testing"

	"starsync-go-srv/internal/models"
)

const sampleExport = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Major Version</key><integer>1</integer>
	<key>Application Version</key><string>12.9.5.5</string>
	<key>Tracks</key>
	<dict>
		<key>1001</key>
		<dict>
			<key>Track ID</key><integer>1001</integer>
			<key>Name</key><string>Bohemian Rhapsody</string>
			<key>Artist</key><string>Queen</string>
			<key>Album</key><string>A Night At The Opera</string>
			<key>Rating</key><integer>100</integer>
		</dict>
		<key>1002</key>
		<dict>
			<key>Track ID</key><integer>1002</integer>
			<key>Name</key><string>Simon &amp; Garfunkel Medley</string>
			<key>Artist</key><string>Simon &amp; Garfunkel</string>
			<key>Compilation</key><true/>
		</dict>
		<key>1003</key>
		<dict>
			<key>Track ID</key><integer>1003</integer>
			<key>Name</key><string>Something</string>
			<key>Artist</key><string>The Beatles</string>
			<key>Album</key><string>Abbey Road</string>
			<key>Rating</key><integer>80</integer>
		</dict>
	</dict>
	<key>Playlists</key>
	<array>
		<dict>
			<key>Name</key><string>Favourites</string>
			<key>Rating</key><integer>60</integer>
			<key>Playlist Items</key>
			<array>
				<dict>
					<key>Track ID</key><integer>1001</integer>
				</dict>
			</array>
		</dict>
	</array>
</dict>
</plist>
`

func TestParseEmitsOnlyRatedTracks(t *testing.T) {
	var rated []models.TrackRecord
	p := &LibraryParser{}

	stats, err := p.Parse(strings.NewReader(sampleExport), func(rec models.TrackRecord) error {
		rated = append(rated, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if stats.Tracks != 3 {
		t.Errorf("expected 3 tracks parsed, got %d", stats.Tracks)
	}
	if stats.Rated != 2 || len(rated) != 2 {
		t.Fatalf("expected 2 rated records, got stats=%d len=%d", stats.Rated, len(rated))
	}

	first := rated[0]
	if first.Name() != "Bohemian Rhapsody" || first.Artist() != "Queen" || first.Album() != "A Night At The Opera" {
		t.Errorf("unexpected first rated record: %v", first)
	}
	if r, ok := first.Rating(); !ok || r != 100 {
		t.Errorf("expected rating 100, got %d (ok=%v)", r, ok)
	}

	second := rated[1]
	if second.Artist() != "The Beatles" || second.ID() != "1003" {
		t.Errorf("unexpected second rated record: %v", second)
	}
}

func TestParseSkipsPlaylistSections(t *testing.T) {
	p := &LibraryParser{}
	stats, err := p.Parse(strings.NewReader(sampleExport), func(rec models.TrackRecord) error {
		if rec.Name() == "Favourites" {
			t.Error("playlist dict leaked through as a track record")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	// The Favourites playlist carries a Rating key; it must not count.
	if stats.Rated != 2 {
		t.Errorf("expected 2 rated records, got %d", stats.Rated)
	}
}

func TestParseDecodesEntities(t *testing.T) {
	p := &LibraryParser{Retain: map[string]models.TrackRecord{}}
	if _, err := p.Parse(strings.NewReader(sampleExport), func(models.TrackRecord) error { return nil }); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	rec, ok := p.Retain["1002"]
	if !ok {
		t.Fatal("unrated record missing from retention table")
	}
	if rec.Artist() != "Simon & Garfunkel" {
		t.Errorf("entity decode failed: %q", rec.Artist())
	}
	if rec["Compilation"] != "true" {
		t.Errorf("boolean field not captured: %v", rec)
	}
	if len(p.Retain) != 3 {
		t.Errorf("expected 3 retained records, got %d", len(p.Retain))
	}
}

func TestParseStopsOnHandlerError(t *testing.T) {
	p := &LibraryParser{}
	calls := 0
	_, err := p.Parse(strings.NewReader(sampleExport), func(models.TrackRecord) error {
		calls++
		return errTest
	})
	if err != errTest {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected parse to stop after first handler error, got %d calls", calls)
	}
}

var errTest = errors.New("stop")
