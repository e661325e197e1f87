package models

import (
	"fmt"
	"strconv"
)

// TrackRecord is one track's worth of key/value pairs reconstructed from the
// library export. Field names are the export's own ("Name", "Artist", ...).
type TrackRecord map[string]string

func (r TrackRecord) ID() string     { return r["Track ID"] }
func (r TrackRecord) Name() string   { return r["Name"] }
func (r TrackRecord) Artist() string { return r["Artist"] }
func (r TrackRecord) Album() string  { return r["Album"] }

// Rating returns the library rating on the 0-100 scale, and whether the
// record carries one at all.
func (r TrackRecord) Rating() (int, bool) {
	raw, ok := r["Rating"]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

type MutationOutcome struct {
	TrackID string `json:"track_id"`
	Op      string `json:"op"` // "setRating" or "star"
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type MatchResult struct {
	Name        string            `json:"name"`
	Artist      string            `json:"artist"`
	Album       string            `json:"album"`
	MatchStatus string            `json:"match_status"` // FOUND / NOT_FOUND
	TrackIDs    []string          `json:"track_ids,omitempty"`
	Rating      float64           `json:"rating"`
	Favorite    bool              `json:"favorite"`
	Suggestion  string            `json:"suggestion,omitempty"`
	Mutations   []MutationOutcome `json:"mutations,omitempty"`
}

// Label renders the identifying fields for reports; missing fields show as
// "n/a".
func (r *MatchResult) Label() string {
	return fmt.Sprintf("%s - %s - %s", orNA(r.Artist), orNA(r.Album), orNA(r.Name))
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

type Report struct {
	SourceName string `json:"source_name"`
	Parsed     int    `json:"parsed"`
	Rated      int    `json:"rated"`
	Matched    int    `json:"matched"`
	NotFound   int    `json:"not_found"`
	Mutations  int    `json:"mutations"`
	Failures   int    `json:"failures"`
	DryRun     bool   `json:"dry_run"`
	Timestamp  string `json:"timestamp"`
}

// Observer receives progress and outcome notifications during an index build
// and a sync run. All calls happen from the single goroutine driving the run.
type Observer interface {
	Info(message string)
	IndexProgress(artist, album string, tracks int)
	TrackOutcome(res *MatchResult)
	MutationOutcome(res *MatchResult, m MutationOutcome)
}
