package subsonic

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Artist is one entry from the server's artist index.
type Artist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AlbumCount int    `json:"albumCount"`
}

type Album struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Year int    `json:"year"`
}

type Song struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Track int    `json:"track"`
}

// ListArtists flattens the server's A-Z artist index into one slice,
// preserving the server's ordering.
func (c *Client) ListArtists(ctx context.Context) ([]Artist, error) {
	var result struct {
		Artists struct {
			Index []struct {
				Name   string   `json:"name"`
				Artist []Artist `json:"artist"`
			} `json:"index"`
		} `json:"artists"`
	}

	if err := c.DoRequest(ctx, "getArtists", nil, &result); err != nil {
		return nil, fmt.Errorf("%w: getArtists: %v", ErrCatalogUnavailable, err)
	}

	var artists []Artist
	for _, idx := range result.Artists.Index {
		artists = append(artists, idx.Artist...)
	}
	return artists, nil
}

// GetArtistAlbums fetches the albums of one artist.
func (c *Client) GetArtistAlbums(ctx context.Context, artistID string) ([]Album, error) {
	var result struct {
		Artist struct {
			Album []Album `json:"album"`
		} `json:"artist"`
	}

	params := url.Values{"id": {artistID}}
	if err := c.DoRequest(ctx, "getArtist", params, &result); err != nil {
		return nil, fmt.Errorf("%w: getArtist %s: %v", ErrCatalogUnavailable, artistID, err)
	}
	return result.Artist.Album, nil
}

// GetAlbumTracks fetches the songs of one album.
func (c *Client) GetAlbumTracks(ctx context.Context, albumID string) ([]Song, error) {
	var result struct {
		Album struct {
			Song []Song `json:"song"`
		} `json:"album"`
	}

	params := url.Values{"id": {albumID}}
	if err := c.DoRequest(ctx, "getAlbum", params, &result); err != nil {
		return nil, fmt.Errorf("%w: getAlbum %s: %v", ErrCatalogUnavailable, albumID, err)
	}
	return result.Album.Song, nil
}

// SetRating pushes a 0.0-5.0 rating for one remote track. The value is
// rendered with one decimal, matching the granularity the matcher produces.
func (c *Client) SetRating(ctx context.Context, trackID string, rating float64) error {
	params := url.Values{
		"id":     {trackID},
		"rating": {strconv.FormatFloat(rating, 'f', 1, 64)},
	}
	return c.DoRequest(ctx, "setRating", params, nil)
}

// Star marks one remote track as a favorite.
func (c *Client) Star(ctx context.Context, trackID string) error {
	params := url.Values{"id": {trackID}}
	return c.DoRequest(ctx, "star", params, nil)
}
