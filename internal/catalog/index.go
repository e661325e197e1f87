package catalog

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"starsync-go-srv/internal/models"
	"starsync-go-srv/internal/normalizer"
	"starsync-go-srv/internal/subsonic"
)

// How many artists are fetched in parallel during a build. The client's
// rate limiter still caps the request rate globally.
const buildConcurrency = 4

// Index maps normalized artist -> normalized album -> normalized title ->
// remote track IDs, in catalog traversal order. Duplicate IDs under one
// title are legitimate (bonus tracks, compilations) and order is preserved.
type Index map[string]map[string]map[string][]string

// Add appends trackID under the given normalized keys, creating the
// intermediate maps on first use.
func (ix Index) Add(artist, album, title, trackID string) {
	albums, ok := ix[artist]
	if !ok {
		albums = make(map[string]map[string][]string)
		ix[artist] = albums
	}
	titles, ok := albums[album]
	if !ok {
		titles = make(map[string][]string)
		albums[album] = titles
	}
	titles[title] = append(titles[title], trackID)
}

// Albums returns the album keys under one artist, sorted for deterministic
// traversal. Returns nil if the artist is unknown.
func (ix Index) Albums(artist string) []string {
	albums, ok := ix[artist]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(albums))
	for k := range albums {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the track IDs under an exact (artist, album, title) key,
// or nil when any level is absent.
func (ix Index) Lookup(artist, album, title string) []string {
	albums, ok := ix[artist]
	if !ok {
		return nil
	}
	titles, ok := albums[album]
	if !ok {
		return nil
	}
	return titles[title]
}

// Service is the remote catalog capability the builder consumes.
// *subsonic.Client satisfies it.
type Service interface {
	ListArtists(ctx context.Context) ([]subsonic.Artist, error)
	GetArtistAlbums(ctx context.Context, artistID string) ([]subsonic.Album, error)
	GetAlbumTracks(ctx context.Context, albumID string) ([]subsonic.Song, error)
}

type albumEntry struct {
	album subsonic.Album
	songs []subsonic.Song
}

type artistEntry struct {
	artist subsonic.Artist
	albums []albumEntry
}

// Build walks the whole remote catalog and produces a fresh Index.
//
// Failure policy is abort: if any fetch fails the partial index is discarded
// and the error (wrapping subsonic.ErrCatalogUnavailable) is returned, so a
// half-seen catalog can never masquerade as a complete one. Artists are
// fetched concurrently but merged sequentially in index order, so two builds
// against identical server responses yield structurally identical indexes.
func Build(ctx context.Context, svc Service, obs models.Observer) (Index, error) {
	artists, err := svc.ListArtists(ctx)
	if err != nil {
		return nil, err
	}
	obs.Info(fmt.Sprintf("indexing %d artists", len(artists)))

	entries := make([]artistEntry, len(artists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(buildConcurrency)

	for i, a := range artists {
		i, a := i, a
		g.Go(func() error {
			albums, err := svc.GetArtistAlbums(gctx, a.ID)
			if err != nil {
				return err
			}
			// Year sort is for readable progress only; missing years
			// decode as 0 and sort first.
			sort.SliceStable(albums, func(x, y int) bool {
				return albums[x].Year < albums[y].Year
			})

			entry := artistEntry{artist: a}
			for _, al := range albums {
				songs, err := svc.GetAlbumTracks(gctx, al.ID)
				if err != nil {
					return err
				}
				sort.SliceStable(songs, func(x, y int) bool {
					return songs[x].Track < songs[y].Track
				})
				entry.albums = append(entry.albums, albumEntry{album: al, songs: songs})
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix := make(Index)
	for _, e := range entries {
		normArtist := normalizer.Normalize(e.artist.Name)
		for _, ae := range e.albums {
			obs.IndexProgress(e.artist.Name, ae.album.Name, len(ae.songs))
			normAlbum := normalizer.Normalize(ae.album.Name)
			for _, s := range ae.songs {
				ix.Add(normArtist, normAlbum, normalizer.Normalize(s.Title), s.ID)
			}
		}
	}
	return ix, nil
}
