package catalog

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"starsync-go-srv/internal/models"
	"starsync-go-srv/internal/subsonic"
)

type nopObserver struct{}

func (nopObserver) Info(string)                                                 {}
func (nopObserver) IndexProgress(string, string, int)                           {}
func (nopObserver) TrackOutcome(*models.MatchResult)                            {}
func (nopObserver) MutationOutcome(*models.MatchResult, models.MutationOutcome) {}

type fakeService struct {
	artists []subsonic.Artist
	albums  map[string][]subsonic.Album
	songs   map[string][]subsonic.Song

	failAlbumID string
}

func (f *fakeService) ListArtists(ctx context.Context) ([]subsonic.Artist, error) {
	return f.artists, nil
}

func (f *fakeService) GetArtistAlbums(ctx context.Context, artistID string) ([]subsonic.Album, error) {
	return f.albums[artistID], nil
}

func (f *fakeService) GetAlbumTracks(ctx context.Context, albumID string) ([]subsonic.Song, error) {
	if albumID == f.failAlbumID {
		return nil, errors.New("connection refused")
	}
	return f.songs[albumID], nil
}

func testService() *fakeService {
	return &fakeService{
		artists: []subsonic.Artist{
			{ID: "ar1", Name: "The Beatles"},
			{ID: "ar2", Name: "Queen"},
		},
		albums: map[string][]subsonic.Album{
			"ar1": {
				{ID: "al1", Name: "Abbey Road", Year: 1969},
				{ID: "al2", Name: "Let It Be", Year: 1970},
			},
			"ar2": {
				{ID: "al3", Name: "A Night at the Opera", Year: 1975},
			},
		},
		songs: map[string][]subsonic.Song{
			"al1": {
				{ID: "1", Title: "Come Together", Track: 1},
				{ID: "2", Title: "Something", Track: 2},
			},
			"al2": {
				{ID: "3", Title: "Let It Be", Track: 6},
			},
			"al3": {
				{ID: "42", Title: "Bohemian Rhapsody", Track: 11},
			},
		},
	}
}

func TestBuildNormalizesKeys(t *testing.T) {
	ix, err := Build(context.Background(), testService(), nopObserver{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := ix.Lookup("beatles", "abbey road", "come together"); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("expected normalized lookup to return [1], got %v", got)
	}
	if got := ix.Lookup("queen", "a night at the opera", "bohemian rhapsody"); !reflect.DeepEqual(got, []string{"42"}) {
		t.Errorf("expected normalized lookup to return [42], got %v", got)
	}
	if ix.Lookup("the beatles", "abbey road", "come together") != nil {
		t.Error("raw artist name must not be an index key")
	}
}

func TestBuildDeterministic(t *testing.T) {
	svc := testService()

	first, err := Build(context.Background(), svc, nopObserver{})
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	second, err := Build(context.Background(), svc, nopObserver{})
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("two builds over identical responses must produce identical indexes")
	}
}

func TestBuildPreservesDuplicateIDs(t *testing.T) {
	svc := testService()
	// Same title twice on one album: bonus track scenario.
	svc.songs["al3"] = []subsonic.Song{
		{ID: "42", Title: "Bohemian Rhapsody", Track: 11},
		{ID: "99", Title: "Bohemian Rhapsody", Track: 12},
	}

	ix, err := Build(context.Background(), svc, nopObserver{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	got := ix.Lookup("queen", "a night at the opera", "bohemian rhapsody")
	if !reflect.DeepEqual(got, []string{"42", "99"}) {
		t.Errorf("expected [42 99] in track order, got %v", got)
	}
}

func TestBuildAbortsOnFetchFailure(t *testing.T) {
	svc := testService()
	svc.failAlbumID = "al2"

	ix, err := Build(context.Background(), svc, nopObserver{})
	if err == nil {
		t.Fatal("expected Build to abort when an album fetch fails")
	}
	if ix != nil {
		t.Error("partial index must be discarded on build failure")
	}
}

func TestAlbumsSorted(t *testing.T) {
	ix := make(Index)
	ix.Add("x", "b", "song", "2")
	ix.Add("x", "a", "song", "1")

	if got := ix.Albums("x"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected sorted album keys [a b], got %v", got)
	}
	if ix.Albums("unknown") != nil {
		t.Error("unknown artist must yield nil album list")
	}
}
