// Package places implements the Geocoder on the Google Maps Platform web
// services.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api"

// Client calls the geocoding and places endpoints.
type Client struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	countryCode string
}

var _ domain.Geocoder = (*Client)(nil)

// NewClient creates the places client. Results are biased to the given
// ISO country code.
func NewClient(apiKey, baseURL, countryCode string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      apiKey,
		countryCode: strings.ToLower(countryCode),
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID           string `json:"place_id"`
		FormattedAddress  string `json:"formatted_address"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

// ReverseGeocode resolves coordinates to a named location.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.Location, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	params.Set("result_type", "neighborhood|sublocality|locality|route")

	var resp geocodeResponse
	if err := c.get(ctx, "/geocode/json", "reverse_geocode", params, &resp); err != nil {
		return domain.Location{}, err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return domain.Location{}, fmt.Errorf("places: reverse geocode status %s", resp.Status)
	}

	result := resp.Results[0]
	area := ""
	for _, comp := range result.AddressComponents {
		for _, t := range comp.Types {
			if t == "neighborhood" || t == "sublocality" || t == "locality" {
				area = comp.LongName
				break
			}
		}
		if area != "" {
			break
		}
	}
	name := area
	if name == "" {
		name = result.FormattedAddress
	}
	return domain.Location{
		Latitude:         lat,
		Longitude:        lng,
		DisplayName:      name,
		Area:             area,
		FormattedAddress: result.FormattedAddress,
		PlaceID:          result.PlaceID,
		Source:           domain.LocationSourceGPS,
	}, nil
}

type autocompleteResponse struct {
	Status      string `json:"status"`
	Predictions []struct {
		PlaceID              string `json:"place_id"`
		Description          string `json:"description"`
		StructuredFormatting struct {
			MainText string `json:"main_text"`
		} `json:"structured_formatting"`
	} `json:"predictions"`
	ErrorMessage string `json:"error_message"`
}

// Autocomplete suggests locations matching a typed query. Returned
// locations carry only names and place IDs; coordinates need a follow-up
// PlaceDetails call.
func (c *Client) Autocomplete(ctx context.Context, query string, limit int) ([]domain.Location, error) {
	params := url.Values{}
	params.Set("input", query)
	if c.countryCode != "" {
		params.Set("components", "country:"+c.countryCode)
	}

	var resp autocompleteResponse
	if err := c.get(ctx, "/place/autocomplete/json", "autocomplete", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "ZERO_RESULTS" {
		return nil, nil
	}
	if resp.Status != "OK" {
		return nil, fmt.Errorf("places: autocomplete status %s", resp.Status)
	}

	locations := make([]domain.Location, 0, limit)
	for _, pred := range resp.Predictions {
		if len(locations) >= limit {
			break
		}
		name := pred.StructuredFormatting.MainText
		if name == "" {
			name = pred.Description
		}
		locations = append(locations, domain.Location{
			DisplayName:      name,
			Area:             name,
			FormattedAddress: pred.Description,
			PlaceID:          pred.PlaceID,
			Source:           domain.LocationSourceSuggestion,
		})
	}
	return locations, nil
}

type detailsResponse struct {
	Status string `json:"status"`
	Result struct {
		PlaceID              string `json:"place_id"`
		Name                 string `json:"name"`
		FormattedAddress     string `json:"formatted_address"`
		FormattedPhoneNumber string `json:"formatted_phone_number"`
		Website              string `json:"website"`
		Geometry             struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		OpeningHours struct {
			WeekdayText []string `json:"weekday_text"`
		} `json:"opening_hours"`
		Photos []struct {
			PhotoReference string `json:"photo_reference"`
		} `json:"photos"`
	} `json:"result"`
	ErrorMessage string `json:"error_message"`
}

// PlaceDetails resolves a place ID to a full location.
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (domain.Location, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "place_id,name,formatted_address,geometry")

	var resp detailsResponse
	if err := c.get(ctx, "/place/details/json", "place_details", params, &resp); err != nil {
		return domain.Location{}, err
	}
	if resp.Status == "NOT_FOUND" {
		return domain.Location{}, domain.ErrNotFound
	}
	if resp.Status != "OK" {
		return domain.Location{}, fmt.Errorf("places: details status %s", resp.Status)
	}
	return domain.Location{
		Latitude:         resp.Result.Geometry.Location.Lat,
		Longitude:        resp.Result.Geometry.Location.Lng,
		DisplayName:      resp.Result.Name,
		Area:             resp.Result.Name,
		FormattedAddress: resp.Result.FormattedAddress,
		PlaceID:          resp.Result.PlaceID,
		Source:           domain.LocationSourceSuggestion,
	}, nil
}

type findPlaceResponse struct {
	Status     string `json:"status"`
	Candidates []struct {
		PlaceID string `json:"place_id"`
	} `json:"candidates"`
	ErrorMessage string `json:"error_message"`
}

// FindPlace resolves a business name to its best place match, with phone,
// website, opening hours and photo references.
func (c *Client) FindPlace(ctx context.Context, name string) (domain.Place, error) {
	params := url.Values{}
	params.Set("input", name)
	params.Set("inputtype", "textquery")
	params.Set("fields", "place_id")

	var found findPlaceResponse
	if err := c.get(ctx, "/place/findplacefromtext/json", "find_place", params, &found); err != nil {
		return domain.Place{}, err
	}
	if found.Status == "ZERO_RESULTS" || len(found.Candidates) == 0 {
		return domain.Place{}, domain.ErrNotFound
	}
	if found.Status != "OK" {
		return domain.Place{}, fmt.Errorf("places: find place status %s", found.Status)
	}

	params = url.Values{}
	params.Set("place_id", found.Candidates[0].PlaceID)
	params.Set("fields", "place_id,name,formatted_address,geometry,formatted_phone_number,website,opening_hours,photos")

	var resp detailsResponse
	if err := c.get(ctx, "/place/details/json", "place_details", params, &resp); err != nil {
		return domain.Place{}, err
	}
	if resp.Status != "OK" {
		return domain.Place{}, fmt.Errorf("places: details status %s", resp.Status)
	}

	place := domain.Place{
		PlaceID:      resp.Result.PlaceID,
		Name:         resp.Result.Name,
		Address:      resp.Result.FormattedAddress,
		Latitude:     resp.Result.Geometry.Location.Lat,
		Longitude:    resp.Result.Geometry.Location.Lng,
		Phone:        resp.Result.FormattedPhoneNumber,
		Website:      resp.Result.Website,
		OpeningHours: resp.Result.OpeningHours.WeekdayText,
	}
	for _, photo := range resp.Result.Photos {
		place.PhotoRefs = append(place.PhotoRefs, photo.PhotoReference)
	}
	return place, nil
}

// PlacePhotos returns up to max fetchable photo URLs for a place.
func (c *Client) PlacePhotos(ctx context.Context, placeID string, max int) ([]string, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "photos")

	var resp detailsResponse
	if err := c.get(ctx, "/place/details/json", "place_photos", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, fmt.Errorf("places: photos status %s", resp.Status)
	}

	urls := make([]string, 0, max)
	for _, photo := range resp.Result.Photos {
		if len(urls) >= max {
			break
		}
		urls = append(urls, c.photoURL(photo.PhotoReference))
	}
	return urls, nil
}

func (c *Client) photoURL(ref string) string {
	params := url.Values{}
	params.Set("photo_reference", ref)
	params.Set("maxwidth", "1024")
	params.Set("key", c.apiKey)
	return c.baseURL + "/place/photo?" + params.Encode()
}

func (c *Client) get(ctx context.Context, path, operation string, params url.Values, dest any) error {
	params.Set("key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("places: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("places", operation, path, start, err)
		return fmt.Errorf("places: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("places", operation, path, start, err)
		return fmt.Errorf("places: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		err = fmt.Errorf("places: unexpected status %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("places", operation, path, start, err)
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		metrics.ObserveNetworkRequest("places", operation, path, start, err)
		return fmt.Errorf("places: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("places", operation, path, start, nil)
	return nil
}
