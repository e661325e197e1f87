package matcher

import (
	"context"
	"math"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"starsync-go-srv/internal/catalog"
	"starsync-go-srv/internal/models"
	"starsync-go-srv/internal/normalizer"
)

// Minimum Jaro-Winkler score before a near-miss artist is worth suggesting.
const suggestionThreshold = 0.85

// Dispatcher is the mutation capability of the remote service.
// *subsonic.Client satisfies it.
type Dispatcher interface {
	SetRating(ctx context.Context, trackID string, rating float64) error
	Star(ctx context.Context, trackID string) error
}

// ConvertRating maps the library's 0-100 rating (20 per star) onto the
// remote 0.0-5.0 scale, rounded to one decimal.
func ConvertRating(library int) float64 {
	return math.Round(float64(library)/20*10) / 10
}

type Matcher struct {
	Index catalog.Index
	// Threshold is the computed rating (0-5) at or above which a matched
	// track is also marked favorite.
	Threshold float64
}

// Match resolves one rated library record against the catalog index.
//
// Artist miss means no match. With an Album field the lookup narrows to that
// album; without one every album of the artist is a candidate, and matches
// accumulate across all of them (a title on a studio album and a compilation
// matches both; see the known same-title ambiguity in DESIGN.md).
func (m *Matcher) Match(rec models.TrackRecord) *models.MatchResult {
	res := &models.MatchResult{
		Name:        rec.Name(),
		Artist:      rec.Artist(),
		Album:       rec.Album(),
		MatchStatus: "NOT_FOUND",
	}

	libRating, _ := rec.Rating()
	res.Rating = ConvertRating(libRating)
	res.Favorite = res.Rating >= m.Threshold

	artist := normalizer.Normalize(rec.Artist())
	if _, ok := m.Index[artist]; !ok {
		res.Suggestion = m.suggestArtist(artist)
		return res
	}

	var candidates []string
	if _, hasAlbum := rec["Album"]; hasAlbum {
		candidates = []string{normalizer.Normalize(rec.Album())}
	} else {
		candidates = m.Index.Albums(artist)
	}

	title := normalizer.Normalize(rec.Name())
	for _, album := range candidates {
		res.TrackIDs = append(res.TrackIDs, m.Index.Lookup(artist, album, title)...)
	}

	if len(res.TrackIDs) > 0 {
		res.MatchStatus = "FOUND"
	}
	return res
}

// Dispatch pushes the rating (and favorite flag, when due) to every matched
// identifier. A failing call is recorded and reported but never blocks the
// remaining identifiers.
func (m *Matcher) Dispatch(ctx context.Context, svc Dispatcher, res *models.MatchResult, obs models.Observer) {
	for _, id := range res.TrackIDs {
		out := models.MutationOutcome{TrackID: id, Op: "setRating", OK: true}
		if err := svc.SetRating(ctx, id, res.Rating); err != nil {
			out.OK = false
			out.Error = err.Error()
		}
		res.Mutations = append(res.Mutations, out)
		obs.MutationOutcome(res, out)

		if !res.Favorite {
			continue
		}
		out = models.MutationOutcome{TrackID: id, Op: "star", OK: true}
		if err := svc.Star(ctx, id); err != nil {
			out.OK = false
			out.Error = err.Error()
		}
		res.Mutations = append(res.Mutations, out)
		obs.MutationOutcome(res, out)
	}
}

// suggestArtist scans the index for the closest artist key to a missed one.
// Suggestions only decorate the no-match report; they never create matches.
func (m *Matcher) suggestArtist(norm string) string {
	if norm == "" {
		return ""
	}
	jw := metrics.NewJaroWinkler()
	best := ""
	bestScore := suggestionThreshold
	for k := range m.Index {
		if score := strutil.Similarity(norm, k, jw); score > bestScore {
			best = k
			bestScore = score
		}
	}
	return best
}
